package lineage

import "github.com/leapstack-labs/traceline/pkg/plan"

// CountStarColumn is the sentinel column name recorded when an output
// derives from count(*). It marks "row existence over this table" with no
// specific column to point at.
const CountStarColumn = "__count__"

// SourceColumn identifies one base column an output was derived from.
type SourceColumn struct {
	Table  plan.QualifiedName `json:"table"`
	Column string             `json:"column"`
}

// CountStar builds the sentinel source for a count(*) over table.
func CountStar(table plan.QualifiedName) SourceColumn {
	return SourceColumn{Table: table, Column: CountStarColumn}
}

// String renders the source as table.column.
func (s SourceColumn) String() string {
	return s.Table.String() + "." + s.Column
}

// ColumnLineage is one output column together with the base columns it was
// computed from. An empty Sources slice means the value is constant-derived
// or could not be attributed.
type ColumnLineage struct {
	Name    string         `json:"name"`
	Sources []SourceColumn `json:"sources"`
}

// Lineage is the extraction result for one statement.
//
// Sources and Targets are de-duplicated and keep first-encounter order.
// Columns is a list, not a map: it preserves duplicates and the output
// order of the plan root (or of the destination schema for commands).
type Lineage struct {
	Sources []plan.QualifiedName `json:"sources"`
	Targets []plan.QualifiedName `json:"targets"`
	Columns []ColumnLineage      `json:"columns"`
}

// IsEmpty reports whether the record carries no lineage at all, as produced
// for DDL with no executable projection.
func (l *Lineage) IsEmpty() bool {
	return len(l.Sources) == 0 && len(l.Targets) == 0 && len(l.Columns) == 0
}

// appendSources appends src entries onto dst, skipping entries dst already
// holds. Order of first appearance is preserved.
func appendSources(dst, src []SourceColumn) []SourceColumn {
	for _, s := range src {
		if !containsSource(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}

func containsSource(list []SourceColumn, s SourceColumn) bool {
	for _, have := range list {
		if have == s {
			return true
		}
	}
	return false
}

// tableSet accumulates touched tables in first-encounter order.
type tableSet struct {
	order []plan.QualifiedName
	seen  map[plan.QualifiedName]struct{}
}

func newTableSet() *tableSet {
	return &tableSet{seen: make(map[plan.QualifiedName]struct{})}
}

func (t *tableSet) add(name plan.QualifiedName) {
	if name.IsZero() {
		return
	}
	if _, ok := t.seen[name]; ok {
		return
	}
	t.seen[name] = struct{}{}
	t.order = append(t.order, name)
}

func (t *tableSet) addAll(other *tableSet) {
	if other == nil {
		return
	}
	for _, name := range other.order {
		t.add(name)
	}
}

func (t *tableSet) names() []plan.QualifiedName {
	return t.order
}
