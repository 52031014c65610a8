package lineage

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/traceline/pkg/plan"
)

// bind produces the final record for a command root: the child plan's
// propagated lineage zipped positionally against the destination schema,
// with column names fully qualified as target.column.
func (e *extractor) bind(cmd plan.Command) (*Lineage, error) {
	switch c := cmd.(type) {
	case *plan.CreateTable:
		// No executable projection: nothing read, nothing derived.
		return &Lineage{}, nil

	case *plan.CreateTableAs:
		return e.bindQuery(c.Table, c.Columns, c.Query)

	case *plan.CreateView:
		return e.bindQuery(c.Name, c.Columns, c.Query)

	case *plan.InsertIntoDir:
		return e.bindQuery(plan.PathName(c.Path), nil, c.Query)

	case *plan.InsertIntoTable:
		return e.bindInsert(c)

	case *plan.MergeInto:
		return e.bindMerge(c)

	default:
		name := plan.Operator(cmd)
		if e.strict {
			return nil, &UnsupportedOperatorError{Operator: name}
		}
		// Unknown command kinds degrade to their query child's lineage
		// with no target bound.
		e.logger.Debug("no binding rule for command, extracting child only", "operator", name)
		children := cmd.Children()
		if len(children) == 0 {
			return &Lineage{}, nil
		}
		return ExtractWithOptions(children[0], Options{
			Catalog: e.catalog,
			Caches:  e.caches,
			Logger:  e.logger,
			Strict:  e.strict,
		})
	}
}

// bindQuery zips the query's outputs against the destination schema by
// position. names, when non-empty, renames the outputs in order (CTAS and
// CREATE VIEW column lists).
func (e *extractor) bindQuery(target plan.QualifiedName, names []string, query plan.Node) (*Lineage, error) {
	child, err := e.node(query)
	if err != nil {
		return nil, err
	}
	out := query.Output()
	if len(names) > 0 && len(names) != len(out) {
		return nil, &UnresolvedPlanError{
			Operator: plan.Operator(query),
			Reason:   fmt.Sprintf("destination declares %d columns, query yields %d", len(names), len(out)),
		}
	}
	columns := make([]ColumnLineage, len(out))
	for i, col := range out {
		name := col.Name
		if len(names) > 0 {
			name = names[i]
		}
		columns[i] = ColumnLineage{
			Name:    target.String() + "." + name,
			Sources: child.sources(col.ID),
		}
	}
	return &Lineage{
		Sources: child.tables.names(),
		Targets: []plan.QualifiedName{target},
		Columns: columns,
	}, nil
}

// bindInsert handles INSERT INTO / INSERT OVERWRITE. The destination list
// includes partition columns; a static partition value pins its column to a
// constant and consumes no query output, while dynamic partition columns
// bind positionally like any other.
func (e *extractor) bindInsert(c *plan.InsertIntoTable) (*Lineage, error) {
	child, err := e.node(c.Query)
	if err != nil {
		return nil, err
	}
	out := c.Query.Output()
	target := c.Table

	var columns []ColumnLineage
	if len(c.Columns) > 0 {
		static := make(map[string]bool, len(c.Partition))
		for _, p := range c.Partition {
			if p.IsStatic() {
				static[strings.ToLower(p.Name)] = true
			}
		}
		listed := make(map[string]bool, len(c.Columns))
		qpos := 0
		for _, name := range c.Columns {
			listed[strings.ToLower(name)] = true
			col := ColumnLineage{Name: target.String() + "." + name}
			if !static[strings.ToLower(name)] {
				if qpos < len(out) {
					col.Sources = child.sources(out[qpos].ID)
				}
				qpos++
			}
			columns = append(columns, col)
		}
		// Partition columns omitted from the list still belong to the
		// destination schema.
		for _, p := range c.Partition {
			if listed[strings.ToLower(p.Name)] {
				continue
			}
			col := ColumnLineage{Name: target.String() + "." + p.Name}
			if !p.IsStatic() && qpos < len(out) {
				col.Sources = child.sources(out[qpos].ID)
				qpos++
			}
			columns = append(columns, col)
		}
	} else {
		// Without an explicit destination list the query outputs bind in
		// order, the trailing ones feeding the dynamic partition columns,
		// and static partition columns follow with no lineage.
		dynamic := 0
		for _, p := range c.Partition {
			if !p.IsStatic() {
				dynamic++
			}
		}
		if dynamic > len(out) {
			dynamic = len(out)
		}
		plain := len(out) - dynamic
		for i := 0; i < plain; i++ {
			columns = append(columns, ColumnLineage{
				Name:    target.String() + "." + out[i].Name,
				Sources: child.sources(out[i].ID),
			})
		}
		di := 0
		for _, p := range c.Partition {
			col := ColumnLineage{Name: target.String() + "." + p.Name}
			if !p.IsStatic() && plain+di < len(out) {
				col.Sources = child.sources(out[plain+di].ID)
				di++
			}
			columns = append(columns, col)
		}
	}

	return &Lineage{
		Sources: child.tables.names(),
		Targets: []plan.QualifiedName{target},
		Columns: columns,
	}, nil
}

// bindMerge unions, per destination column, the lineage contributed by
// every clause that assigns it. UPDATE SET * and INSERT * expand to a full
// positional assignment between destination and source-row schemas first.
// The target relation is read as well as written, so its tables lead the
// source list.
func (e *extractor) bindMerge(m *plan.MergeInto) (*Lineage, error) {
	targetRes, err := e.node(m.Target)
	if err != nil {
		return nil, err
	}
	sourceRes, err := e.node(m.Source)
	if err != nil {
		return nil, err
	}

	// Assignment values may reference either side; ids are disjoint so a
	// plain merge of the maps forms the scope.
	env := newResult()
	for id, srcs := range targetRes.columns {
		env.columns[id] = srcs
	}
	for id, srcs := range sourceRes.columns {
		env.columns[id] = srcs
	}
	env.tables.addAll(targetRes.tables)
	env.tables.addAll(sourceRes.tables)

	if m.Condition != nil {
		if _, err := e.expr(m.Condition, env, newTableSet()); err != nil {
			return nil, err
		}
	}

	destCols := m.Target.Output()
	byName := make(map[string]int, len(destCols))
	for i, c := range destCols {
		byName[strings.ToLower(c.Name)] = i
	}
	sets := make([][]SourceColumn, len(destCols))

	// Tables reached only through assignment-value subqueries append after
	// both relations.
	extra := newTableSet()

	apply := func(actions []plan.MergeAction) error {
		for _, a := range actions {
			if a.Condition != nil {
				if _, err := e.expr(a.Condition, env, newTableSet()); err != nil {
					return err
				}
			}
			if a.Type == plan.MergeDelete {
				continue
			}
			if a.Star {
				srcOut := m.Source.Output()
				n := len(destCols)
				if len(srcOut) < n {
					n = len(srcOut)
				}
				for i := 0; i < n; i++ {
					sets[i] = appendSources(sets[i], sourceRes.sources(srcOut[i].ID))
				}
				continue
			}
			for _, as := range a.Assignments {
				idx, ok := byName[strings.ToLower(as.Column)]
				if !ok {
					return &UnresolvedPlanError{
						Operator: "MergeInto",
						Reason:   fmt.Sprintf("destination column %q is not in the target schema", as.Column),
					}
				}
				srcs, err := e.expr(as.Value, env, extra)
				if err != nil {
					return err
				}
				sets[idx] = appendSources(sets[idx], srcs)
			}
		}
		return nil
	}
	if err := apply(m.Matched); err != nil {
		return nil, err
	}
	if err := apply(m.NotMatched); err != nil {
		return nil, err
	}

	sources := newTableSet()
	sources.addAll(targetRes.tables)
	sources.addAll(sourceRes.tables)
	sources.addAll(extra)

	columns := make([]ColumnLineage, len(destCols))
	for i, c := range destCols {
		columns[i] = ColumnLineage{
			Name:    m.Table.String() + "." + c.Name,
			Sources: sets[i],
		}
	}
	return &Lineage{
		Sources: sources.names(),
		Targets: []plan.QualifiedName{m.Table},
		Columns: columns,
	}, nil
}
