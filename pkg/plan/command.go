package plan

// ---------- Command Nodes ----------

// Command is a plan root that writes its result somewhere: a table, a
// view definition, or a directory. Commands produce no rows of their
// own; Output is always nil and the interesting schema is the
// destination's.
type Command interface {
	Node
	commandNode()
}

// PartitionField is one partition column on an insert. A non-empty Value
// is a static partition: the column is pinned to a constant and consumes
// no query output. An empty Value marks a dynamic partition bound from
// the query positionally.
type PartitionField struct {
	Name  string
	Value string
}

// IsStatic reports whether the field carries a constant value.
func (p PartitionField) IsStatic() bool { return p.Value != "" }

// InsertIntoTable appends or overwrites rows in an existing table.
// Columns is the destination schema in order, including partition
// columns.
type InsertIntoTable struct {
	Table     QualifiedName
	Columns   []string
	Partition []PartitionField
	Overwrite bool
	Query     Node
}

func (*InsertIntoTable) operatorNode() {}
func (*InsertIntoTable) commandNode()  {}

// Children implements Node.
func (i *InsertIntoTable) Children() []Node { return []Node{i.Query} }

// Output implements Node.
func (i *InsertIntoTable) Output() []Column { return nil }

// CreateTableAs creates Table from the query's result. Columns, when
// non-empty, renames the query outputs in order.
type CreateTableAs struct {
	Table   QualifiedName
	Columns []string
	Query   Node
}

func (*CreateTableAs) operatorNode() {}
func (*CreateTableAs) commandNode()  {}

// Children implements Node.
func (c *CreateTableAs) Children() []Node { return []Node{c.Query} }

// Output implements Node.
func (c *CreateTableAs) Output() []Column { return nil }

// CreateView persists a view definition. Lineage treats it exactly like
// CreateTableAs: the view is a destination whose columns derive from the
// defining query.
type CreateView struct {
	Name      QualifiedName
	Columns   []string
	OrReplace bool
	Query     Node
}

func (*CreateView) operatorNode() {}
func (*CreateView) commandNode()  {}

// Children implements Node.
func (c *CreateView) Children() []Node { return []Node{c.Query} }

// Output implements Node.
func (c *CreateView) Output() []Column { return nil }

// CreateTable is bare DDL with no query. It reads nothing and derives
// nothing; extraction yields an empty record.
type CreateTable struct {
	Table   QualifiedName
	Columns []string
}

func (*CreateTable) operatorNode() {}
func (*CreateTable) commandNode()  {}

// Children implements Node.
func (c *CreateTable) Children() []Node { return nil }

// Output implements Node.
func (c *CreateTable) Output() []Column { return nil }

// InsertIntoDir writes the query result to a directory sink. The target
// identifier is the literal path in backticks; directories have no
// catalog entry.
type InsertIntoDir struct {
	Path   string
	Format string
	Query  Node
}

func (*InsertIntoDir) operatorNode() {}
func (*InsertIntoDir) commandNode()  {}

// Children implements Node.
func (i *InsertIntoDir) Children() []Node { return []Node{i.Query} }

// Output implements Node.
func (i *InsertIntoDir) Output() []Column { return nil }

// MergeActionType represents a merge clause variant.
type MergeActionType string

// MergeActionType constants.
const (
	MergeUpdate MergeActionType = "UPDATE"
	MergeDelete MergeActionType = "DELETE"
	MergeInsert MergeActionType = "INSERT"
)

// MergeAction is one WHEN [NOT] MATCHED clause. Star marks UPDATE SET *
// or INSERT *, which expand to a full positional assignment from the
// source schema.
type MergeAction struct {
	Type        MergeActionType
	Condition   Expr // optional AND condition
	Star        bool
	Assignments []Assignment
}

// Assignment sets one destination column from an expression.
type Assignment struct {
	Column string
	Value  Expr
}

// MergeInto merges Source into the target table. Target is the readable
// target relation (assignments may reference its columns); Table is the
// canonical destination identity.
type MergeInto struct {
	Table      QualifiedName
	Target     Node
	Source     Node
	Condition  Expr
	Matched    []MergeAction
	NotMatched []MergeAction
}

func (*MergeInto) operatorNode() {}
func (*MergeInto) commandNode()  {}

// Children implements Node.
func (m *MergeInto) Children() []Node { return []Node{m.Target, m.Source} }

// Output implements Node.
func (m *MergeInto) Output() []Column { return nil }
