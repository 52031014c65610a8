package plan

// ColumnID uniquely identifies one attribute within a single plan tree.
// IDs are minted by an Allocator during resolution; the zero value means
// "no column" and never appears on a resolved plan.
type ColumnID int32

// Column is one attribute in an operator's output schema. Name is the
// user-visible label; identity for lineage purposes is carried by ID alone.
// Renaming a column keeps its ID, recomputing it mints a fresh one.
type Column struct {
	ID   ColumnID
	Name string
}

// Allocator hands out plan-unique column IDs. It is not safe for
// concurrent use; each plan tree gets its own allocator.
type Allocator struct {
	nextID ColumnID
}

// NextColumnID returns a fresh ID, starting from 1.
func (a *Allocator) NextColumnID() ColumnID {
	a.nextID++
	return a.nextID
}

// NewColumn mints a column with a fresh ID.
func (a *Allocator) NewColumn(name string) Column {
	return Column{ID: a.NextColumnID(), Name: name}
}

// NewColumns mints one column per name, in order.
func (a *Allocator) NewColumns(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = a.NewColumn(name)
	}
	return cols
}
