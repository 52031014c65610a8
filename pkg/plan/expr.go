package plan

// ---------- Expression Types ----------

// Expr is a scalar expression appearing inside an operator: a projection,
// a predicate, a grouping key, or an aggregation. Expressions reference
// their inputs by ColumnID, never by name.
type Expr interface {
	exprNode()
}

// ColumnRef references an input attribute by its resolved ID. Name is
// retained for display only and plays no part in identity.
type ColumnRef struct {
	ID   ColumnID
	Name string
}

func (*ColumnRef) exprNode() {}

// UnresolvedColumn is a reference that resolution could not bind to an
// input attribute. Like UnresolvedRelation, its presence in a plan aborts
// extraction.
type UnresolvedColumn struct {
	Table string // optional qualifier as written
	Name  string
}

func (*UnresolvedColumn) exprNode() {}

// Literal represents a constant value.
type Literal struct {
	Type  LiteralType
	Value string
}

func (*Literal) exprNode() {}

// LiteralType represents the type of a literal.
type LiteralType int

// LiteralType constants for literal value types.
const (
	LiteralNumber LiteralType = iota
	LiteralString
	LiteralBool
	LiteralNull
)

// BinaryExpr represents a binary expression.
type BinaryExpr struct {
	Left  Expr
	Op    string // "+", "=", "AND", ...
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// UnaryExpr represents a unary expression.
type UnaryExpr struct {
	Op   string // "-", "NOT", ...
	Expr Expr
}

func (*UnaryExpr) exprNode() {}

// FuncCall represents a scalar function call.
type FuncCall struct {
	Name string
	Args []Expr
}

func (*FuncCall) exprNode() {}

// AggCall represents an aggregate function call.
type AggCall struct {
	Name     string
	Distinct bool
	Args     []Expr
	Star     bool // count(*)
	Filter   Expr // FILTER (WHERE ...) clause
}

func (*AggCall) exprNode() {}

// WindowCall represents an analytic function evaluated over a window.
type WindowCall struct {
	Func        Expr // the wrapped AggCall or FuncCall
	PartitionBy []Expr
	OrderBy     []SortField
}

func (*WindowCall) exprNode() {}

// CaseExpr represents a CASE expression.
type CaseExpr struct {
	Operand Expr // CASE operand WHEN... (optional)
	Whens   []WhenClause
	Else    Expr
}

func (*CaseExpr) exprNode() {}

// WhenClause represents a WHEN clause in a CASE expression.
type WhenClause struct {
	Condition Expr
	Result    Expr
}

// CastExpr represents a CAST expression.
type CastExpr struct {
	Expr     Expr
	TypeName string
}

func (*CastExpr) exprNode() {}

// IsNullExpr represents an IS [NOT] NULL expression.
type IsNullExpr struct {
	Expr Expr
	Not  bool
}

func (*IsNullExpr) exprNode() {}

// ScalarSubquery wraps a single-column plan used as a value.
type ScalarSubquery struct {
	Plan Node
}

func (*ScalarSubquery) exprNode() {}

// ExistsSubquery represents an EXISTS predicate over a plan.
type ExistsSubquery struct {
	Not  bool
	Plan Node
}

func (*ExistsSubquery) exprNode() {}

// InSubquery represents value IN (plan). Value is the tested expression.
type InSubquery struct {
	Value Expr
	Not   bool
	Plan  Node
}

func (*InSubquery) exprNode() {}

// SortField is one ordering key.
type SortField struct {
	Expr       Expr
	Descending bool
}

// NamedExpr binds an expression to the output column it produces.
type NamedExpr struct {
	Col  Column
	Expr Expr
}
