package plan

import "fmt"

// ---------- Operator Nodes ----------

// Node is one operator in a resolved plan tree. Children returns the
// operator's inputs in plan order; Output returns its ordered output
// schema. Leaves return a nil child slice.
type Node interface {
	Children() []Node
	Output() []Column
	operatorNode()
}

// Relation is a leaf scan of a base table, or of a view the catalog can
// resolve to a defining plan.
type Relation struct {
	Name    QualifiedName
	Columns []Column
}

func (*Relation) operatorNode() {}

// Children implements Node.
func (r *Relation) Children() []Node { return nil }

// Output implements Node.
func (r *Relation) Output() []Column { return r.Columns }

// CachedRelation is a leaf standing in for a previously materialized plan
// fragment. Key identifies the fragment in a CacheRegistry; Name, when
// present, is the table identity to fall back on if the key is unknown.
type CachedRelation struct {
	Key     string
	Name    QualifiedName
	Columns []Column
}

func (*CachedRelation) operatorNode() {}

// Children implements Node.
func (c *CachedRelation) Children() []Node { return nil }

// Output implements Node.
func (c *CachedRelation) Output() []Column { return c.Columns }

// UnresolvedRelation is a leaf the resolver failed to bind. Its presence
// in a plan aborts extraction.
type UnresolvedRelation struct {
	Parts []string // the name as written
}

func (*UnresolvedRelation) operatorNode() {}

// Children implements Node.
func (u *UnresolvedRelation) Children() []Node { return nil }

// Output implements Node.
func (u *UnresolvedRelation) Output() []Column { return nil }

// OneRow is the leaf under a FROM-less select. It produces exactly one
// row and no columns.
type OneRow struct{}

func (*OneRow) operatorNode() {}

// Children implements Node.
func (o *OneRow) Children() []Node { return nil }

// Output implements Node.
func (o *OneRow) Output() []Column { return nil }

// LocalRelation is an inline rowset (a VALUES list). Lineage treats every
// column as constant-derived.
type LocalRelation struct {
	Columns []Column
}

func (*LocalRelation) operatorNode() {}

// Children implements Node.
func (l *LocalRelation) Children() []Node { return nil }

// Output implements Node.
func (l *LocalRelation) Output() []Column { return l.Columns }

// Project computes one output column per projection item.
type Project struct {
	Projections []NamedExpr
	Child       Node
}

func (*Project) operatorNode() {}

// Children implements Node.
func (p *Project) Children() []Node { return []Node{p.Child} }

// Output implements Node.
func (p *Project) Output() []Column {
	cols := make([]Column, len(p.Projections))
	for i, ne := range p.Projections {
		cols[i] = ne.Col
	}
	return cols
}

// Filter keeps rows matching Condition. Its output schema is its child's.
type Filter struct {
	Condition Expr
	Child     Node
}

func (*Filter) operatorNode() {}

// Children implements Node.
func (f *Filter) Children() []Node { return []Node{f.Child} }

// Output implements Node.
func (f *Filter) Output() []Column { return f.Child.Output() }

// Aggregate groups its input and evaluates one expression per output
// column. Grouping columns that survive into the output appear in
// Aggregations as plain column references.
type Aggregate struct {
	GroupBy      []Expr
	Aggregations []NamedExpr
	Child        Node
}

func (*Aggregate) operatorNode() {}

// Children implements Node.
func (a *Aggregate) Children() []Node { return []Node{a.Child} }

// Output implements Node.
func (a *Aggregate) Output() []Column {
	cols := make([]Column, len(a.Aggregations))
	for i, ne := range a.Aggregations {
		cols[i] = ne.Col
	}
	return cols
}

// JoinType represents the join variant.
type JoinType string

// JoinType constants.
const (
	InnerJoin      JoinType = "INNER"
	LeftOuterJoin  JoinType = "LEFT OUTER"
	RightOuterJoin JoinType = "RIGHT OUTER"
	FullOuterJoin  JoinType = "FULL OUTER"
	CrossJoin      JoinType = "CROSS"
	LeftSemiJoin   JoinType = "LEFT SEMI"
	LeftAntiJoin   JoinType = "LEFT ANTI"
)

// Join combines two inputs. Semi and anti joins emit only the left
// schema; every other variant concatenates left then right.
type Join struct {
	Type      JoinType
	Condition Expr // nil for cross joins
	Left      Node
	Right     Node
}

func (*Join) operatorNode() {}

// Children implements Node.
func (j *Join) Children() []Node { return []Node{j.Left, j.Right} }

// Output implements Node.
func (j *Join) Output() []Column {
	left := j.Left.Output()
	if j.Type == LeftSemiJoin || j.Type == LeftAntiJoin {
		return left
	}
	right := j.Right.Output()
	cols := make([]Column, 0, len(left)+len(right))
	cols = append(cols, left...)
	return append(cols, right...)
}

// SetOpType represents the set operation variant.
type SetOpType string

// SetOpType constants.
const (
	UnionOp     SetOpType = "UNION"
	IntersectOp SetOpType = "INTERSECT"
	ExceptOp    SetOpType = "EXCEPT"
)

// SetOp combines two or more inputs positionally. Its output schema is
// the first input's; every input must have the same arity.
type SetOp struct {
	Type   SetOpType
	All    bool
	Inputs []Node
}

func (*SetOp) operatorNode() {}

// Children implements Node.
func (s *SetOp) Children() []Node { return s.Inputs }

// Output implements Node.
func (s *SetOp) Output() []Column {
	if len(s.Inputs) == 0 {
		return nil
	}
	return s.Inputs[0].Output()
}

// Window appends one analytic column per function to its child's schema.
type Window struct {
	Functions []NamedExpr // each Expr is typically a *WindowCall
	Child     Node
}

func (*Window) operatorNode() {}

// Children implements Node.
func (w *Window) Children() []Node { return []Node{w.Child} }

// Output implements Node.
func (w *Window) Output() []Column {
	child := w.Child.Output()
	cols := make([]Column, 0, len(child)+len(w.Functions))
	cols = append(cols, child...)
	for _, ne := range w.Functions {
		cols = append(cols, ne.Col)
	}
	return cols
}

// Expand replays each input row once per projection row; grouping sets
// lower to this. Projections is indexed [row][position] and every row
// must have len(Columns) entries. A null-filled position carries a
// Literal of type LiteralNull.
type Expand struct {
	Projections [][]Expr
	Columns     []Column
	Child       Node
}

func (*Expand) operatorNode() {}

// Children implements Node.
func (e *Expand) Children() []Node { return []Node{e.Child} }

// Output implements Node.
func (e *Expand) Output() []Column { return e.Columns }

// SubqueryAlias renames a subtree. Column identities pass through
// untouched.
type SubqueryAlias struct {
	Alias string
	Child Node
}

func (*SubqueryAlias) operatorNode() {}

// Children implements Node.
func (s *SubqueryAlias) Children() []Node { return []Node{s.Child} }

// Output implements Node.
func (s *SubqueryAlias) Output() []Column { return s.Child.Output() }

// Sort orders its input.
type Sort struct {
	Fields []SortField
	Child  Node
}

func (*Sort) operatorNode() {}

// Children implements Node.
func (s *Sort) Children() []Node { return []Node{s.Child} }

// Output implements Node.
func (s *Sort) Output() []Column { return s.Child.Output() }

// Limit truncates its input.
type Limit struct {
	Count  int64
	Offset int64
	Child  Node
}

func (*Limit) operatorNode() {}

// Children implements Node.
func (l *Limit) Children() []Node { return []Node{l.Child} }

// Output implements Node.
func (l *Limit) Output() []Column { return l.Child.Output() }

// Distinct removes duplicate rows.
type Distinct struct {
	Child Node
}

func (*Distinct) operatorNode() {}

// Children implements Node.
func (d *Distinct) Children() []Node { return []Node{d.Child} }

// Output implements Node.
func (d *Distinct) Output() []Column { return d.Child.Output() }

// Operator returns a short name for the node's kind, for logs and errors.
func Operator(n Node) string {
	switch n.(type) {
	case *Relation:
		return "Relation"
	case *CachedRelation:
		return "CachedRelation"
	case *UnresolvedRelation:
		return "UnresolvedRelation"
	case *OneRow:
		return "OneRow"
	case *LocalRelation:
		return "LocalRelation"
	case *Project:
		return "Project"
	case *Filter:
		return "Filter"
	case *Aggregate:
		return "Aggregate"
	case *Join:
		return "Join"
	case *SetOp:
		return "SetOp"
	case *Window:
		return "Window"
	case *Expand:
		return "Expand"
	case *SubqueryAlias:
		return "SubqueryAlias"
	case *Sort:
		return "Sort"
	case *Limit:
		return "Limit"
	case *Distinct:
		return "Distinct"
	case *InsertIntoTable:
		return "InsertIntoTable"
	case *CreateTableAs:
		return "CreateTableAs"
	case *CreateView:
		return "CreateView"
	case *CreateTable:
		return "CreateTable"
	case *InsertIntoDir:
		return "InsertIntoDir"
	case *MergeInto:
		return "MergeInto"
	default:
		return fmt.Sprintf("%T", n)
	}
}
