package planfile

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/traceline/pkg/plan"
)

// decoder builds one plan tree. Each tree gets its own column allocator
// so column identities stay unique within the tree; the declared table
// schemas are shared across the document.
type decoder struct {
	alloc  plan.Allocator
	tables map[plan.QualifiedName][]string
}

// scope is the chain of column schemas an expression may reference:
// the enclosing operator's input columns, then each enclosing query's
// columns for correlated subqueries. Resolution is innermost first,
// case-insensitive.
type scope struct {
	parent *scope
	cols   []plan.Column
}

func (s *scope) resolve(name string) (plan.Column, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		for _, c := range sc.cols {
			if strings.EqualFold(c.Name, name) {
				return c, true
			}
		}
	}
	return plan.Column{}, false
}

// root decodes a plan list entry: a command, or a bare query tree.
// Commands are only legal at the root of a plan; nested positions go
// through node, which rejects them.
func (d *decoder) root(raw map[string]any, path string) (plan.Node, error) {
	op, err := opOf(raw, path)
	if err != nil {
		return nil, err
	}
	switch op {
	case "insert":
		return d.insert(raw, path)
	case "create_table_as":
		return d.createTableAs(raw, path)
	case "create_view":
		return d.createView(raw, path)
	case "create_table":
		return d.createTable(raw, path)
	case "insert_dir":
		return d.insertDir(raw, path)
	case "merge":
		return d.merge(raw, path)
	default:
		return d.node(raw, nil, path)
	}
}

// node decodes one operator. outer is the enclosing scope for correlated
// references; nil at the top of a tree.
func (d *decoder) node(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	op, err := opOf(raw, path)
	if err != nil {
		return nil, err
	}
	switch op {
	case "relation":
		return d.relation(raw, path)
	case "cached":
		return d.cached(raw, path)
	case "values":
		return d.values(raw, path)
	case "one_row":
		return &plan.OneRow{}, nil
	case "project":
		return d.project(raw, outer, path)
	case "filter":
		return d.filter(raw, outer, path)
	case "aggregate":
		return d.aggregate(raw, outer, path)
	case "join":
		return d.join(raw, outer, path)
	case "union", "intersect", "except":
		return d.setOp(raw, op, outer, path)
	case "window":
		return d.window(raw, outer, path)
	case "expand":
		return d.expand(raw, outer, path)
	case "alias":
		return d.alias(raw, outer, path)
	case "sort":
		return d.sort(raw, outer, path)
	case "limit":
		return d.limit(raw, outer, path)
	case "distinct":
		return d.distinct(raw, outer, path)
	case "insert", "create_table_as", "create_view", "create_table", "insert_dir", "merge":
		return nil, errf(path, "command %q is only allowed at a plan root", op)
	default:
		return nil, errf(path, "unknown operator %q", op)
	}
}

func opOf(raw map[string]any, path string) (string, error) {
	v, ok := raw["op"]
	if !ok {
		return "", errf(path, "missing op")
	}
	op, ok := v.(string)
	if !ok || op == "" {
		return "", errf(path, "op must be a non-empty string")
	}
	return op, nil
}

// child decodes a required child node field.
func (d *decoder) child(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	if raw == nil {
		return nil, errf(path, "missing child")
	}
	return d.node(raw, outer, path)
}

// ---------- leaves ----------

func (d *decoder) relation(raw map[string]any, path string) (plan.Node, error) {
	var spec struct {
		Table   string   `mapstructure:"table"`
		Columns []string `mapstructure:"columns"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	if spec.Table == "" {
		return nil, errf(path, "missing table")
	}
	name := plan.ParseName(spec.Table)
	cols := spec.Columns
	if len(cols) == 0 {
		declared, ok := d.tables[name]
		if !ok {
			return nil, errf(path, "table %q has no column list and no declared schema", spec.Table)
		}
		cols = declared
	}
	return &plan.Relation{Name: name, Columns: d.alloc.NewColumns(cols...)}, nil
}

func (d *decoder) cached(raw map[string]any, path string) (plan.Node, error) {
	var spec struct {
		Key     string   `mapstructure:"key"`
		Table   string   `mapstructure:"table"`
		Columns []string `mapstructure:"columns"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	if spec.Key == "" {
		return nil, errf(path, "missing cache key")
	}
	if len(spec.Columns) == 0 {
		return nil, errf(path, "missing columns")
	}
	c := &plan.CachedRelation{Key: spec.Key, Columns: d.alloc.NewColumns(spec.Columns...)}
	if spec.Table != "" {
		c.Name = plan.ParseName(spec.Table)
	}
	return c, nil
}

func (d *decoder) values(raw map[string]any, path string) (plan.Node, error) {
	var spec struct {
		Columns []string `mapstructure:"columns"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	if len(spec.Columns) == 0 {
		return nil, errf(path, "missing columns")
	}
	return &plan.LocalRelation{Columns: d.alloc.NewColumns(spec.Columns...)}, nil
}

// ---------- unary operators ----------

func (d *decoder) project(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	var spec struct {
		Columns []namedExprSpec `mapstructure:"columns"`
		Child   map[string]any  `mapstructure:"child"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	child, err := d.child(spec.Child, outer, path+".child")
	if err != nil {
		return nil, err
	}
	if len(spec.Columns) == 0 {
		return nil, errf(path, "missing columns")
	}
	sc := &scope{parent: outer, cols: child.Output()}
	projections, err := d.namedExprs(spec.Columns, sc, path+".columns")
	if err != nil {
		return nil, err
	}
	return &plan.Project{Projections: projections, Child: child}, nil
}

func (d *decoder) filter(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	var spec struct {
		Condition any            `mapstructure:"condition"`
		Child     map[string]any `mapstructure:"child"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	child, err := d.child(spec.Child, outer, path+".child")
	if err != nil {
		return nil, err
	}
	sc := &scope{parent: outer, cols: child.Output()}
	cond, err := d.expr(spec.Condition, sc, path+".condition")
	if err != nil {
		return nil, err
	}
	return &plan.Filter{Condition: cond, Child: child}, nil
}

func (d *decoder) aggregate(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	var spec struct {
		GroupBy []any           `mapstructure:"group_by"`
		Columns []namedExprSpec `mapstructure:"columns"`
		Child   map[string]any  `mapstructure:"child"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	child, err := d.child(spec.Child, outer, path+".child")
	if err != nil {
		return nil, err
	}
	if len(spec.Columns) == 0 {
		return nil, errf(path, "missing columns")
	}
	sc := &scope{parent: outer, cols: child.Output()}
	groupBy, err := d.exprList(spec.GroupBy, sc, path+".group_by")
	if err != nil {
		return nil, err
	}
	aggs, err := d.namedExprs(spec.Columns, sc, path+".columns")
	if err != nil {
		return nil, err
	}
	return &plan.Aggregate{GroupBy: groupBy, Aggregations: aggs, Child: child}, nil
}

func (d *decoder) window(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	var spec struct {
		Functions []namedExprSpec `mapstructure:"functions"`
		Child     map[string]any  `mapstructure:"child"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	child, err := d.child(spec.Child, outer, path+".child")
	if err != nil {
		return nil, err
	}
	if len(spec.Functions) == 0 {
		return nil, errf(path, "missing functions")
	}
	sc := &scope{parent: outer, cols: child.Output()}
	fns, err := d.namedExprs(spec.Functions, sc, path+".functions")
	if err != nil {
		return nil, err
	}
	return &plan.Window{Functions: fns, Child: child}, nil
}

func (d *decoder) expand(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	var spec struct {
		Columns     []string       `mapstructure:"columns"`
		Projections [][]any        `mapstructure:"projections"`
		Child       map[string]any `mapstructure:"child"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	child, err := d.child(spec.Child, outer, path+".child")
	if err != nil {
		return nil, err
	}
	if len(spec.Columns) == 0 {
		return nil, errf(path, "missing columns")
	}
	sc := &scope{parent: outer, cols: child.Output()}
	rows := make([][]plan.Expr, len(spec.Projections))
	for i, rowSpec := range spec.Projections {
		rowPath := fmt.Sprintf("%s.projections[%d]", path, i)
		if len(rowSpec) != len(spec.Columns) {
			return nil, errf(rowPath, "projection has %d expressions, want %d", len(rowSpec), len(spec.Columns))
		}
		row, err := d.exprList(rowSpec, sc, rowPath)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return &plan.Expand{
		Projections: rows,
		Columns:     d.alloc.NewColumns(spec.Columns...),
		Child:       child,
	}, nil
}

func (d *decoder) alias(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	var spec struct {
		Name  string         `mapstructure:"name"`
		Child map[string]any `mapstructure:"child"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	child, err := d.child(spec.Child, outer, path+".child")
	if err != nil {
		return nil, err
	}
	return &plan.SubqueryAlias{Alias: spec.Name, Child: child}, nil
}

func (d *decoder) sort(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	var spec struct {
		Fields []sortFieldSpec `mapstructure:"fields"`
		Child  map[string]any  `mapstructure:"child"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	child, err := d.child(spec.Child, outer, path+".child")
	if err != nil {
		return nil, err
	}
	sc := &scope{parent: outer, cols: child.Output()}
	fields, err := d.sortFields(spec.Fields, sc, path+".fields")
	if err != nil {
		return nil, err
	}
	return &plan.Sort{Fields: fields, Child: child}, nil
}

func (d *decoder) limit(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	var spec struct {
		Count  int64          `mapstructure:"count"`
		Offset int64          `mapstructure:"offset"`
		Child  map[string]any `mapstructure:"child"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	child, err := d.child(spec.Child, outer, path+".child")
	if err != nil {
		return nil, err
	}
	return &plan.Limit{Count: spec.Count, Offset: spec.Offset, Child: child}, nil
}

func (d *decoder) distinct(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	var spec struct {
		Child map[string]any `mapstructure:"child"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	child, err := d.child(spec.Child, outer, path+".child")
	if err != nil {
		return nil, err
	}
	return &plan.Distinct{Child: child}, nil
}

// ---------- binary and n-ary operators ----------

var joinTypes = map[string]plan.JoinType{
	"inner": plan.InnerJoin,
	"left":  plan.LeftOuterJoin,
	"right": plan.RightOuterJoin,
	"full":  plan.FullOuterJoin,
	"cross": plan.CrossJoin,
	"semi":  plan.LeftSemiJoin,
	"anti":  plan.LeftAntiJoin,
}

func (d *decoder) join(raw map[string]any, outer *scope, path string) (plan.Node, error) {
	var spec struct {
		Type      string         `mapstructure:"type"`
		Condition any            `mapstructure:"condition"`
		Left      map[string]any `mapstructure:"left"`
		Right     map[string]any `mapstructure:"right"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	if spec.Type == "" {
		spec.Type = "inner"
	}
	jt, ok := joinTypes[spec.Type]
	if !ok {
		return nil, errf(path, "unknown join type %q", spec.Type)
	}
	left, err := d.child(spec.Left, outer, path+".left")
	if err != nil {
		return nil, err
	}
	right, err := d.child(spec.Right, outer, path+".right")
	if err != nil {
		return nil, err
	}
	j := &plan.Join{Type: jt, Left: left, Right: right}
	if spec.Condition != nil {
		// The condition sees both sides regardless of join variant.
		cols := make([]plan.Column, 0, len(left.Output())+len(right.Output()))
		cols = append(cols, left.Output()...)
		cols = append(cols, right.Output()...)
		sc := &scope{parent: outer, cols: cols}
		cond, err := d.expr(spec.Condition, sc, path+".condition")
		if err != nil {
			return nil, err
		}
		j.Condition = cond
	}
	return j, nil
}

var setOpTypes = map[string]plan.SetOpType{
	"union":     plan.UnionOp,
	"intersect": plan.IntersectOp,
	"except":    plan.ExceptOp,
}

func (d *decoder) setOp(raw map[string]any, op string, outer *scope, path string) (plan.Node, error) {
	var spec struct {
		All    bool             `mapstructure:"all"`
		Inputs []map[string]any `mapstructure:"inputs"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	if len(spec.Inputs) < 2 {
		return nil, errf(path, "%s needs at least two inputs, got %d", op, len(spec.Inputs))
	}
	inputs := make([]plan.Node, len(spec.Inputs))
	for i, inSpec := range spec.Inputs {
		in, err := d.node(inSpec, outer, fmt.Sprintf("%s.inputs[%d]", path, i))
		if err != nil {
			return nil, err
		}
		inputs[i] = in
	}
	return &plan.SetOp{Type: setOpTypes[op], All: spec.All, Inputs: inputs}, nil
}

// ---------- shared expression plumbing ----------

type namedExprSpec struct {
	Name string `mapstructure:"name"`
	Expr any    `mapstructure:"expr"`
}

type sortFieldSpec struct {
	Expr any  `mapstructure:"expr"`
	Desc bool `mapstructure:"desc"`
}

func (d *decoder) namedExprs(specs []namedExprSpec, sc *scope, path string) ([]plan.NamedExpr, error) {
	out := make([]plan.NamedExpr, len(specs))
	for i, ns := range specs {
		p := fmt.Sprintf("%s[%d]", path, i)
		if ns.Name == "" {
			return nil, errf(p, "missing column name")
		}
		expr, err := d.expr(ns.Expr, sc, p)
		if err != nil {
			return nil, err
		}
		out[i] = plan.NamedExpr{Col: d.outputColumn(ns.Name, expr), Expr: expr}
	}
	return out, nil
}

// outputColumn assigns the identity of an output position: a bare column
// reference keeps the referenced ID under the new name, anything computed
// mints a fresh one.
func (d *decoder) outputColumn(name string, expr plan.Expr) plan.Column {
	if ref, ok := expr.(*plan.ColumnRef); ok {
		return plan.Column{ID: ref.ID, Name: name}
	}
	return d.alloc.NewColumn(name)
}

func (d *decoder) sortFields(specs []sortFieldSpec, sc *scope, path string) ([]plan.SortField, error) {
	out := make([]plan.SortField, len(specs))
	for i, fs := range specs {
		expr, err := d.expr(fs.Expr, sc, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = plan.SortField{Expr: expr, Descending: fs.Desc}
	}
	return out, nil
}

func (d *decoder) exprList(raws []any, sc *scope, path string) ([]plan.Expr, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	out := make([]plan.Expr, len(raws))
	for i, raw := range raws {
		expr, err := d.expr(raw, sc, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = expr
	}
	return out, nil
}
