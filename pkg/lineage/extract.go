package lineage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/traceline/pkg/catalog"
	"github.com/leapstack-labs/traceline/pkg/plan"
)

// Options configures one extraction.
type Options struct {
	// Catalog resolves view leaves to their defining plans. When nil every
	// Relation is treated as a base table.
	Catalog catalog.Catalog

	// Caches resolves CachedRelation keys to the plans that produced them.
	Caches catalog.CacheRegistry

	// Logger receives debug records, notably when the conservative fallback
	// rule fires. Defaults to a discard logger.
	Logger *slog.Logger

	// Strict makes operators without a propagation rule an
	// UnsupportedOperatorError instead of falling back.
	Strict bool
}

// Extract computes lineage for root with default options: no catalog, no
// cache registry, lenient operator handling.
func Extract(root plan.Node) (*Lineage, error) {
	return ExtractWithOptions(root, Options{})
}

// ExtractWithOptions computes lineage for root. It is a pure function of
// the plan plus the read-only lookups in opts and is safe to call from many
// goroutines as long as each call owns its plan tree.
func ExtractWithOptions(root plan.Node, opts Options) (*Lineage, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &extractor{
		catalog: opts.Catalog,
		caches:  opts.Caches,
		logger:  logger,
		strict:  opts.Strict,
	}

	if cmd, ok := root.(plan.Command); ok {
		result, err := e.bind(cmd)
		if err != nil {
			return nil, err
		}
		return finish(result), nil
	}

	res, err := e.node(root)
	if err != nil {
		return nil, err
	}
	out := root.Output()
	columns := make([]ColumnLineage, len(out))
	for i, col := range out {
		columns[i] = ColumnLineage{Name: col.Name, Sources: res.sources(col.ID)}
	}
	return finish(&Lineage{Sources: res.tables.names(), Columns: columns}), nil
}

// extractor carries the traversal state for one extraction call.
type extractor struct {
	catalog catalog.Catalog
	caches  catalog.CacheRegistry
	logger  *slog.Logger
	strict  bool

	// expanding is the stack of view/cache definitions currently being
	// inlined; re-entry means a cyclic definition.
	expanding []string
}

// nodeResult is the lineage state of one operator: the source set of every
// column it produces, keyed by identity, plus the tables reachable through
// it in first-encounter order.
type nodeResult struct {
	columns map[plan.ColumnID][]SourceColumn
	tables  *tableSet
}

func newResult() *nodeResult {
	return &nodeResult{
		columns: make(map[plan.ColumnID][]SourceColumn),
		tables:  newTableSet(),
	}
}

// sources returns the source set for id. Unknown ids resolve to nil, never
// an error: a column with no reachable source is ordinary data.
func (r *nodeResult) sources(id plan.ColumnID) []SourceColumn {
	return r.columns[id]
}

// node dispatches on the operator kind. Children are resolved before their
// parent; each case consumes the children's results and produces its own.
func (e *extractor) node(n plan.Node) (*nodeResult, error) {
	switch op := n.(type) {
	case *plan.Relation:
		return e.relation(op)

	case *plan.CachedRelation:
		return e.cachedRelation(op)

	case *plan.UnresolvedRelation:
		return nil, &UnresolvedPlanError{
			Operator: "UnresolvedRelation",
			Reason:   fmt.Sprintf("relation %q was never resolved", strings.Join(op.Parts, ".")),
		}

	case *plan.OneRow:
		return newResult(), nil

	case *plan.LocalRelation:
		// Inline rowsets are constant-derived.
		res := newResult()
		for _, c := range op.Columns {
			res.columns[c.ID] = nil
		}
		return res, nil

	case *plan.Project:
		return e.project(op)

	case *plan.Filter:
		return e.filter(op)

	case *plan.Aggregate:
		return e.aggregate(op)

	case *plan.Join:
		return e.join(op)

	case *plan.SetOp:
		return e.setOp(op)

	case *plan.Window:
		return e.window(op)

	case *plan.Expand:
		return e.expand(op)

	case *plan.SubqueryAlias:
		return e.node(op.Child)

	case *plan.Sort:
		child, err := e.node(op.Child)
		if err != nil {
			return nil, err
		}
		for _, f := range op.Fields {
			if _, err := e.expr(f.Expr, child, newTableSet()); err != nil {
				return nil, err
			}
		}
		return child, nil

	case *plan.Limit:
		return e.node(op.Child)

	case *plan.Distinct:
		return e.node(op.Child)

	default:
		return e.fallback(n)
	}
}

// relation handles leaf scans. A leaf the catalog knows a defining plan for
// is a view: its plan is inlined and the inlined output sets are remapped
// positionally onto this leaf's declared columns. Anything else is a base
// table and a lineage endpoint.
func (e *extractor) relation(r *plan.Relation) (*nodeResult, error) {
	if e.catalog != nil {
		if def, ok := e.catalog.ResolveDefiningPlan(r.Name); ok {
			return e.inline("view "+r.Name.String(), def, r.Columns)
		}
	}
	res := newResult()
	res.tables.add(r.Name)
	for _, c := range r.Columns {
		res.columns[c.ID] = []SourceColumn{{Table: r.Name, Column: c.Name}}
	}
	return res, nil
}

// cachedRelation resolves the cache key to its defining plan. Keys identify
// a registration, never a table name, so two caches over the same base
// table keep disjoint lineage until joined. A key with no registration
// falls back to the base-table rule when the leaf carries a table identity,
// else to constants.
func (e *extractor) cachedRelation(c *plan.CachedRelation) (*nodeResult, error) {
	if e.caches != nil {
		if def, ok := e.caches.Lookup(c.Key); ok {
			return e.inline("cache "+c.Key, def, c.Columns)
		}
	}
	res := newResult()
	if !c.Name.IsZero() {
		res.tables.add(c.Name)
		for _, col := range c.Columns {
			res.columns[col.ID] = []SourceColumn{{Table: c.Name, Column: col.Name}}
		}
		return res, nil
	}
	for _, col := range c.Columns {
		res.columns[col.ID] = nil
	}
	return res, nil
}

// inline extracts the defining plan behind a leaf and remaps its output
// sets 1:1 onto the leaf's declared columns. key names the definition for
// cycle detection.
func (e *extractor) inline(key string, def plan.Node, cols []plan.Column) (*nodeResult, error) {
	if err := e.push(key); err != nil {
		return nil, err
	}
	defer e.pop()

	inner, err := e.node(def)
	if err != nil {
		return nil, err
	}
	out := def.Output()
	if len(out) != len(cols) {
		return nil, &UnresolvedPlanError{
			Operator: "Relation",
			Reason:   fmt.Sprintf("defining plan for %s yields %d columns, leaf declares %d", key, len(out), len(cols)),
		}
	}
	res := newResult()
	res.tables.addAll(inner.tables)
	for i, c := range cols {
		res.columns[c.ID] = inner.sources(out[i].ID)
	}
	return res, nil
}

func (e *extractor) push(key string) error {
	for _, have := range e.expanding {
		if have == key {
			chain := make([]string, 0, len(e.expanding)+1)
			chain = append(chain, e.expanding...)
			return &CyclicDefinitionError{Chain: append(chain, key)}
		}
	}
	e.expanding = append(e.expanding, key)
	return nil
}

func (e *extractor) pop() {
	e.expanding = e.expanding[:len(e.expanding)-1]
}

func (e *extractor) project(p *plan.Project) (*nodeResult, error) {
	child, err := e.node(p.Child)
	if err != nil {
		return nil, err
	}
	res := newResult()
	for _, ne := range p.Projections {
		srcs, err := e.expr(ne.Expr, child, res.tables)
		if err != nil {
			return nil, err
		}
		res.columns[ne.Col.ID] = srcs
	}
	// Scalar-subquery tables were recorded at point of encounter, ahead of
	// the child's own block.
	res.tables.addAll(child.tables)
	return res, nil
}

// filter passes its child through untouched. The predicate, including any
// EXISTS/IN subquery, is walked for well-formedness only: the tables and
// columns it reaches are discarded, never merged into the outer set.
func (e *extractor) filter(f *plan.Filter) (*nodeResult, error) {
	child, err := e.node(f.Child)
	if err != nil {
		return nil, err
	}
	if _, err := e.expr(f.Condition, child, newTableSet()); err != nil {
		return nil, err
	}
	return child, nil
}

func (e *extractor) aggregate(a *plan.Aggregate) (*nodeResult, error) {
	child, err := e.node(a.Child)
	if err != nil {
		return nil, err
	}
	for _, g := range a.GroupBy {
		if _, err := e.expr(g, child, newTableSet()); err != nil {
			return nil, err
		}
	}
	res := newResult()
	for _, ne := range a.Aggregations {
		srcs, err := e.expr(ne.Expr, child, res.tables)
		if err != nil {
			return nil, err
		}
		res.columns[ne.Col.ID] = srcs
	}
	res.tables.addAll(child.tables)
	return res, nil
}

// join concatenates both children's maps; column ids are disjoint by
// construction so no name-based merging ever happens.
func (e *extractor) join(j *plan.Join) (*nodeResult, error) {
	left, err := e.node(j.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.node(j.Right)
	if err != nil {
		return nil, err
	}
	res := newResult()
	for id, srcs := range left.columns {
		res.columns[id] = srcs
	}
	for id, srcs := range right.columns {
		res.columns[id] = srcs
	}
	res.tables.addAll(left.tables)
	res.tables.addAll(right.tables)
	if j.Condition != nil {
		// Join predicates follow the filter rule: checked, then discarded.
		if _, err := e.expr(j.Condition, res, newTableSet()); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// setOp unions its inputs positionally. Output position i is the union of
// every input's set at position i, keyed by the first input's column ids;
// names play no part.
func (e *extractor) setOp(s *plan.SetOp) (*nodeResult, error) {
	if len(s.Inputs) == 0 {
		return nil, &UnresolvedPlanError{Operator: "SetOp", Reason: "set operation has no inputs"}
	}
	first := s.Inputs[0].Output()
	results := make([]*nodeResult, len(s.Inputs))
	for i, in := range s.Inputs {
		r, err := e.node(in)
		if err != nil {
			return nil, err
		}
		if got := len(in.Output()); got != len(first) {
			return nil, &UnresolvedPlanError{
				Operator: "SetOp",
				Reason:   fmt.Sprintf("input %d yields %d columns, expected %d", i, got, len(first)),
			}
		}
		results[i] = r
	}
	res := newResult()
	for pos, col := range first {
		var srcs []SourceColumn
		for i, r := range results {
			srcs = appendSources(srcs, r.sources(s.Inputs[i].Output()[pos].ID))
		}
		res.columns[col.ID] = srcs
	}
	for _, r := range results {
		res.tables.addAll(r.tables)
	}
	return res, nil
}

func (e *extractor) window(w *plan.Window) (*nodeResult, error) {
	child, err := e.node(w.Child)
	if err != nil {
		return nil, err
	}
	res := newResult()
	for id, srcs := range child.columns {
		res.columns[id] = srcs
	}
	for _, ne := range w.Functions {
		srcs, err := e.expr(ne.Expr, child, res.tables)
		if err != nil {
			return nil, err
		}
		res.columns[ne.Col.ID] = srcs
	}
	res.tables.addAll(child.tables)
	return res, nil
}

// expand attributes a position only when every projection row contributes
// sources there. A row that null-fills the position (or pins it to any
// constant, the grouping-id column included) makes it unattributable.
func (e *extractor) expand(x *plan.Expand) (*nodeResult, error) {
	child, err := e.node(x.Child)
	if err != nil {
		return nil, err
	}
	res := newResult()
	res.tables.addAll(child.tables)
	for pos, col := range x.Columns {
		attributable := len(x.Projections) > 0
		var union []SourceColumn
		for _, row := range x.Projections {
			if pos >= len(row) {
				attributable = false
				break
			}
			srcs, err := e.expr(row[pos], child, res.tables)
			if err != nil {
				return nil, err
			}
			if len(srcs) == 0 {
				attributable = false
				break
			}
			union = appendSources(union, srcs)
		}
		if attributable {
			res.columns[col.ID] = union
		} else {
			res.columns[col.ID] = nil
		}
	}
	return res, nil
}

// fallback covers operator kinds without a rule. It never inflates lineage:
// tables are the union of the children's, and columns pass through the
// first child positionally when the arity matches, else resolve to nothing.
func (e *extractor) fallback(n plan.Node) (*nodeResult, error) {
	name := plan.Operator(n)
	if e.strict {
		return nil, &UnsupportedOperatorError{Operator: name}
	}
	e.logger.Debug("no lineage rule for operator, using positional fallback", "operator", name)

	children := n.Children()
	results := make([]*nodeResult, len(children))
	res := newResult()
	for i, c := range children {
		r, err := e.node(c)
		if err != nil {
			return nil, err
		}
		results[i] = r
		res.tables.addAll(r.tables)
	}

	out := n.Output()
	if len(children) > 0 {
		firstOut := children[0].Output()
		if len(firstOut) == len(out) {
			for i, col := range out {
				res.columns[col.ID] = results[0].sources(firstOut[i].ID)
			}
			return res, nil
		}
	}
	for _, col := range out {
		res.columns[col.ID] = nil
	}
	return res, nil
}

// expr resolves the source set of one expression against env, the result of
// the operator's input. Tables reached through scalar subqueries are added
// to tables at point of encounter; predicate subqueries (EXISTS, IN) are
// walked and discarded.
//
// Callers own the returned slice only when it was built here; column
// references hand back the env's slice, so unions always copy.
func (e *extractor) expr(x plan.Expr, env *nodeResult, tables *tableSet) ([]SourceColumn, error) {
	switch ex := x.(type) {
	case nil:
		return nil, nil

	case *plan.ColumnRef:
		return env.sources(ex.ID), nil

	case *plan.UnresolvedColumn:
		name := ex.Name
		if ex.Table != "" {
			name = ex.Table + "." + ex.Name
		}
		return nil, &UnresolvedPlanError{
			Operator: "Expression",
			Reason:   fmt.Sprintf("column %q was never resolved", name),
		}

	case *plan.Literal:
		return nil, nil

	case *plan.BinaryExpr:
		return e.union(env, tables, ex.Left, ex.Right)

	case *plan.UnaryExpr:
		return e.expr(ex.Expr, env, tables)

	case *plan.FuncCall:
		return e.union(env, tables, ex.Args...)

	case *plan.CaseExpr:
		operands := make([]plan.Expr, 0, 2+2*len(ex.Whens))
		operands = append(operands, ex.Operand)
		for _, w := range ex.Whens {
			operands = append(operands, w.Condition, w.Result)
		}
		operands = append(operands, ex.Else)
		return e.union(env, tables, operands...)

	case *plan.CastExpr:
		return e.expr(ex.Expr, env, tables)

	case *plan.IsNullExpr:
		return e.expr(ex.Expr, env, tables)

	case *plan.AggCall:
		return e.aggCall(ex, env, tables)

	case *plan.WindowCall:
		operands := make([]plan.Expr, 0, 1+len(ex.PartitionBy)+len(ex.OrderBy))
		operands = append(operands, ex.Func)
		operands = append(operands, ex.PartitionBy...)
		for _, f := range ex.OrderBy {
			operands = append(operands, f.Expr)
		}
		return e.union(env, tables, operands...)

	case *plan.ScalarSubquery:
		return e.scalarSubquery(ex, tables)

	case *plan.ExistsSubquery:
		_, err := e.node(ex.Plan)
		return nil, err

	case *plan.InSubquery:
		if _, err := e.node(ex.Plan); err != nil {
			return nil, err
		}
		return e.expr(ex.Value, env, tables)

	default:
		// Unknown expression kinds contribute nothing rather than failing.
		return nil, nil
	}
}

// union resolves each operand and merges the sets, de-duplicated, operand
// order preserved.
func (e *extractor) union(env *nodeResult, tables *tableSet, operands ...plan.Expr) ([]SourceColumn, error) {
	var out []SourceColumn
	for _, op := range operands {
		if op == nil {
			continue
		}
		srcs, err := e.expr(op, env, tables)
		if err != nil {
			return nil, err
		}
		out = appendSources(out, srcs)
	}
	return out, nil
}

// aggCall handles aggregate functions. count(*) has no column argument and
// binds to the per-table sentinel of every table reachable through the
// aggregate's input; any other aggregate unions the columns referenced in
// its argument tree. The FILTER clause is a predicate and contributes
// nothing.
func (e *extractor) aggCall(a *plan.AggCall, env *nodeResult, tables *tableSet) ([]SourceColumn, error) {
	if a.Star {
		var srcs []SourceColumn
		for _, t := range env.tables.names() {
			srcs = append(srcs, CountStar(t))
		}
		return srcs, nil
	}
	if a.Filter != nil {
		if _, err := e.expr(a.Filter, env, newTableSet()); err != nil {
			return nil, err
		}
	}
	return e.union(env, tables, a.Args...)
}

// scalarSubquery extracts the embedded plan and contributes its first
// output column's set. Unlike predicate subqueries, its tables join the
// outer set at point of encounter.
func (e *extractor) scalarSubquery(s *plan.ScalarSubquery, tables *tableSet) ([]SourceColumn, error) {
	sub, err := e.node(s.Plan)
	if err != nil {
		return nil, err
	}
	tables.addAll(sub.tables)
	out := s.Plan.Output()
	if len(out) == 0 {
		return nil, nil
	}
	return sub.sources(out[0].ID), nil
}

// finish normalizes nil slices so an empty record always renders as empty
// lists, never null.
func finish(l *Lineage) *Lineage {
	if l.Sources == nil {
		l.Sources = []plan.QualifiedName{}
	}
	if l.Targets == nil {
		l.Targets = []plan.QualifiedName{}
	}
	if l.Columns == nil {
		l.Columns = []ColumnLineage{}
	}
	for i := range l.Columns {
		if l.Columns[i].Sources == nil {
			l.Columns[i].Sources = []SourceColumn{}
		}
	}
	return l
}
