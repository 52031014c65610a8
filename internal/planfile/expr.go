package planfile

import (
	"fmt"

	"github.com/leapstack-labs/traceline/pkg/plan"
)

// expr decodes one expression. A bare string is shorthand for a column
// reference; everything else is a mapping discriminated by its keys.
func (d *decoder) expr(raw any, sc *scope, path string) (plan.Expr, error) {
	switch v := raw.(type) {
	case nil:
		return nil, errf(path, "missing expression")
	case string:
		return d.columnRef(v, sc, path)
	case map[string]any:
		return d.exprMap(v, sc, path)
	default:
		return nil, errf(path, "expression must be a string or a mapping, got %T", raw)
	}
}

func (d *decoder) columnRef(name string, sc *scope, path string) (plan.Expr, error) {
	col, ok := sc.resolve(name)
	if !ok {
		return nil, errf(path, "unknown column %q", name)
	}
	return &plan.ColumnRef{ID: col.ID, Name: col.Name}, nil
}

func (d *decoder) exprMap(v map[string]any, sc *scope, path string) (plan.Expr, error) {
	switch {
	case hasKey(v, "col"):
		name, ok := v["col"].(string)
		if !ok {
			return nil, errf(path, "col must be a string")
		}
		return d.columnRef(name, sc, path)
	case hasKey(v, "lit"):
		return literal(v, path)
	case hasKey(v, "fn"):
		return d.funcCall(v, sc, path)
	case hasKey(v, "agg"):
		return d.aggCall(v, sc, path)
	case hasKey(v, "win"):
		return d.windowCall(v, sc, path)
	case hasKey(v, "case"):
		return d.caseExpr(v, sc, path)
	case hasKey(v, "cast"):
		return d.castExpr(v, sc, path)
	case hasKey(v, "is_null"):
		return d.isNullExpr(v, sc, path)
	case hasKey(v, "subquery"):
		return d.scalarSubquery(v, sc, path)
	case hasKey(v, "exists"):
		return d.existsSubquery(v, sc, path)
	case hasKey(v, "in"):
		return d.inSubquery(v, sc, path)
	case hasKey(v, "op"):
		return d.opExpr(v, sc, path)
	default:
		return nil, errf(path, "unrecognized expression")
	}
}

func hasKey(v map[string]any, key string) bool {
	_, ok := v[key]
	return ok
}

var literalTypes = map[string]plan.LiteralType{
	"number": plan.LiteralNumber,
	"string": plan.LiteralString,
	"bool":   plan.LiteralBool,
	"null":   plan.LiteralNull,
}

// literal decodes {lit: value} with an optional explicit type. Without
// one the type follows the YAML scalar kind.
func literal(v map[string]any, path string) (plan.Expr, error) {
	value := v["lit"]
	lit := &plan.Literal{}
	if value != nil {
		lit.Value = fmt.Sprintf("%v", value)
	}
	if typeName, ok := v["type"].(string); ok {
		lt, known := literalTypes[typeName]
		if !known {
			return nil, errf(path, "unknown literal type %q", typeName)
		}
		lit.Type = lt
		return lit, nil
	}
	switch value.(type) {
	case nil:
		lit.Type = plan.LiteralNull
	case bool:
		lit.Type = plan.LiteralBool
	case int, int64, uint64, float64:
		lit.Type = plan.LiteralNumber
	case string:
		lit.Type = plan.LiteralString
	default:
		return nil, errf(path, "unsupported literal value %v (%T)", value, value)
	}
	return lit, nil
}

func (d *decoder) funcCall(v map[string]any, sc *scope, path string) (plan.Expr, error) {
	var spec struct {
		Fn   string `mapstructure:"fn"`
		Args []any  `mapstructure:"args"`
	}
	if err := decodeInto(v, &spec, path); err != nil {
		return nil, err
	}
	if spec.Fn == "" {
		return nil, errf(path, "missing function name")
	}
	args, err := d.exprList(spec.Args, sc, path+".args")
	if err != nil {
		return nil, err
	}
	return &plan.FuncCall{Name: spec.Fn, Args: args}, nil
}

func (d *decoder) aggCall(v map[string]any, sc *scope, path string) (plan.Expr, error) {
	var spec struct {
		Agg      string `mapstructure:"agg"`
		Args     []any  `mapstructure:"args"`
		Star     bool   `mapstructure:"star"`
		Distinct bool   `mapstructure:"distinct"`
		Filter   any    `mapstructure:"filter"`
	}
	if err := decodeInto(v, &spec, path); err != nil {
		return nil, err
	}
	if spec.Agg == "" {
		return nil, errf(path, "missing aggregate name")
	}
	if spec.Star && len(spec.Args) > 0 {
		return nil, errf(path, "star aggregate cannot take arguments")
	}
	args, err := d.exprList(spec.Args, sc, path+".args")
	if err != nil {
		return nil, err
	}
	agg := &plan.AggCall{Name: spec.Agg, Distinct: spec.Distinct, Args: args, Star: spec.Star}
	if spec.Filter != nil {
		filter, err := d.expr(spec.Filter, sc, path+".filter")
		if err != nil {
			return nil, err
		}
		agg.Filter = filter
	}
	return agg, nil
}

func (d *decoder) windowCall(v map[string]any, sc *scope, path string) (plan.Expr, error) {
	var spec struct {
		Win struct {
			Func        any             `mapstructure:"func"`
			PartitionBy []any           `mapstructure:"partition_by"`
			OrderBy     []sortFieldSpec `mapstructure:"order_by"`
		} `mapstructure:"win"`
	}
	if err := decodeInto(v, &spec, path); err != nil {
		return nil, err
	}
	fn, err := d.expr(spec.Win.Func, sc, path+".func")
	if err != nil {
		return nil, err
	}
	partitionBy, err := d.exprList(spec.Win.PartitionBy, sc, path+".partition_by")
	if err != nil {
		return nil, err
	}
	orderBy, err := d.sortFields(spec.Win.OrderBy, sc, path+".order_by")
	if err != nil {
		return nil, err
	}
	return &plan.WindowCall{Func: fn, PartitionBy: partitionBy, OrderBy: orderBy}, nil
}

func (d *decoder) caseExpr(v map[string]any, sc *scope, path string) (plan.Expr, error) {
	var spec struct {
		Case struct {
			Operand any `mapstructure:"operand"`
			Whens   []struct {
				When any `mapstructure:"when"`
				Then any `mapstructure:"then"`
			} `mapstructure:"whens"`
			Else any `mapstructure:"else"`
		} `mapstructure:"case"`
	}
	if err := decodeInto(v, &spec, path); err != nil {
		return nil, err
	}
	if len(spec.Case.Whens) == 0 {
		return nil, errf(path, "case needs at least one when clause")
	}
	expr := &plan.CaseExpr{}
	if spec.Case.Operand != nil {
		operand, err := d.expr(spec.Case.Operand, sc, path+".operand")
		if err != nil {
			return nil, err
		}
		expr.Operand = operand
	}
	for i, ws := range spec.Case.Whens {
		p := fmt.Sprintf("%s.whens[%d]", path, i)
		cond, err := d.expr(ws.When, sc, p+".when")
		if err != nil {
			return nil, err
		}
		result, err := d.expr(ws.Then, sc, p+".then")
		if err != nil {
			return nil, err
		}
		expr.Whens = append(expr.Whens, plan.WhenClause{Condition: cond, Result: result})
	}
	if spec.Case.Else != nil {
		elseExpr, err := d.expr(spec.Case.Else, sc, path+".else")
		if err != nil {
			return nil, err
		}
		expr.Else = elseExpr
	}
	return expr, nil
}

func (d *decoder) castExpr(v map[string]any, sc *scope, path string) (plan.Expr, error) {
	var spec struct {
		Cast any    `mapstructure:"cast"`
		To   string `mapstructure:"to"`
	}
	if err := decodeInto(v, &spec, path); err != nil {
		return nil, err
	}
	expr, err := d.expr(spec.Cast, sc, path+".cast")
	if err != nil {
		return nil, err
	}
	return &plan.CastExpr{Expr: expr, TypeName: spec.To}, nil
}

func (d *decoder) isNullExpr(v map[string]any, sc *scope, path string) (plan.Expr, error) {
	var spec struct {
		IsNull any  `mapstructure:"is_null"`
		Not    bool `mapstructure:"not"`
	}
	if err := decodeInto(v, &spec, path); err != nil {
		return nil, err
	}
	expr, err := d.expr(spec.IsNull, sc, path+".is_null")
	if err != nil {
		return nil, err
	}
	return &plan.IsNullExpr{Expr: expr, Not: spec.Not}, nil
}

// Subquery plans decode with the enclosing scope as their parent so
// correlated references bind to the outer query's columns.

func (d *decoder) scalarSubquery(v map[string]any, sc *scope, path string) (plan.Expr, error) {
	var spec struct {
		Subquery map[string]any `mapstructure:"subquery"`
	}
	if err := decodeInto(v, &spec, path); err != nil {
		return nil, err
	}
	if spec.Subquery == nil {
		return nil, errf(path, "missing subquery plan")
	}
	sub, err := d.node(spec.Subquery, sc, path+".subquery")
	if err != nil {
		return nil, err
	}
	return &plan.ScalarSubquery{Plan: sub}, nil
}

func (d *decoder) existsSubquery(v map[string]any, sc *scope, path string) (plan.Expr, error) {
	var spec struct {
		Exists map[string]any `mapstructure:"exists"`
		Not    bool           `mapstructure:"not"`
	}
	if err := decodeInto(v, &spec, path); err != nil {
		return nil, err
	}
	if spec.Exists == nil {
		return nil, errf(path, "missing subquery plan")
	}
	sub, err := d.node(spec.Exists, sc, path+".exists")
	if err != nil {
		return nil, err
	}
	return &plan.ExistsSubquery{Not: spec.Not, Plan: sub}, nil
}

func (d *decoder) inSubquery(v map[string]any, sc *scope, path string) (plan.Expr, error) {
	var spec struct {
		In    map[string]any `mapstructure:"in"`
		Value any            `mapstructure:"value"`
		Not   bool           `mapstructure:"not"`
	}
	if err := decodeInto(v, &spec, path); err != nil {
		return nil, err
	}
	if spec.In == nil {
		return nil, errf(path, "missing subquery plan")
	}
	value, err := d.expr(spec.Value, sc, path+".value")
	if err != nil {
		return nil, err
	}
	sub, err := d.node(spec.In, sc, path+".in")
	if err != nil {
		return nil, err
	}
	return &plan.InSubquery{Value: value, Not: spec.Not, Plan: sub}, nil
}

// opExpr decodes {op, left, right} as a binary expression and {op, expr}
// as a unary one.
func (d *decoder) opExpr(v map[string]any, sc *scope, path string) (plan.Expr, error) {
	var spec struct {
		Op    string `mapstructure:"op"`
		Left  any    `mapstructure:"left"`
		Right any    `mapstructure:"right"`
		Expr  any    `mapstructure:"expr"`
	}
	if err := decodeInto(v, &spec, path); err != nil {
		return nil, err
	}
	if spec.Op == "" {
		return nil, errf(path, "missing operator")
	}
	if spec.Expr != nil {
		expr, err := d.expr(spec.Expr, sc, path+".expr")
		if err != nil {
			return nil, err
		}
		return &plan.UnaryExpr{Op: spec.Op, Expr: expr}, nil
	}
	left, err := d.expr(spec.Left, sc, path+".left")
	if err != nil {
		return nil, err
	}
	right, err := d.expr(spec.Right, sc, path+".right")
	if err != nil {
		return nil, err
	}
	return &plan.BinaryExpr{Left: left, Op: spec.Op, Right: right}, nil
}
