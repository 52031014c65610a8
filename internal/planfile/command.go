package planfile

import (
	"fmt"

	"github.com/leapstack-labs/traceline/pkg/plan"
)

type partitionSpec struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
}

func partitionFields(specs []partitionSpec, path string) ([]plan.PartitionField, error) {
	out := make([]plan.PartitionField, len(specs))
	for i, ps := range specs {
		if ps.Name == "" {
			return nil, errf(fmt.Sprintf("%s[%d]", path, i), "missing partition column name")
		}
		out[i] = plan.PartitionField{Name: ps.Name, Value: ps.Value}
	}
	return out, nil
}

func (d *decoder) query(raw map[string]any, path string) (plan.Node, error) {
	if raw == nil {
		return nil, errf(path, "missing query")
	}
	return d.node(raw, nil, path)
}

func (d *decoder) insert(raw map[string]any, path string) (plan.Node, error) {
	var spec struct {
		Table     string          `mapstructure:"table"`
		Columns   []string        `mapstructure:"columns"`
		Partition []partitionSpec `mapstructure:"partition"`
		Overwrite bool            `mapstructure:"overwrite"`
		Query     map[string]any  `mapstructure:"query"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	if spec.Table == "" {
		return nil, errf(path, "missing table")
	}
	partition, err := partitionFields(spec.Partition, path+".partition")
	if err != nil {
		return nil, err
	}
	query, err := d.query(spec.Query, path+".query")
	if err != nil {
		return nil, err
	}
	return &plan.InsertIntoTable{
		Table:     plan.ParseName(spec.Table),
		Columns:   spec.Columns,
		Partition: partition,
		Overwrite: spec.Overwrite,
		Query:     query,
	}, nil
}

func (d *decoder) createTableAs(raw map[string]any, path string) (plan.Node, error) {
	var spec struct {
		Table   string         `mapstructure:"table"`
		Columns []string       `mapstructure:"columns"`
		Query   map[string]any `mapstructure:"query"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	if spec.Table == "" {
		return nil, errf(path, "missing table")
	}
	query, err := d.query(spec.Query, path+".query")
	if err != nil {
		return nil, err
	}
	return &plan.CreateTableAs{
		Table:   plan.ParseName(spec.Table),
		Columns: spec.Columns,
		Query:   query,
	}, nil
}

func (d *decoder) createView(raw map[string]any, path string) (plan.Node, error) {
	var spec struct {
		Name      string         `mapstructure:"name"`
		Columns   []string       `mapstructure:"columns"`
		OrReplace bool           `mapstructure:"or_replace"`
		Query     map[string]any `mapstructure:"query"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	if spec.Name == "" {
		return nil, errf(path, "missing view name")
	}
	query, err := d.query(spec.Query, path+".query")
	if err != nil {
		return nil, err
	}
	return &plan.CreateView{
		Name:      plan.ParseName(spec.Name),
		Columns:   spec.Columns,
		OrReplace: spec.OrReplace,
		Query:     query,
	}, nil
}

func (d *decoder) createTable(raw map[string]any, path string) (plan.Node, error) {
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
	return &plan.CreateTable{Table: plan.ParseName(spec.Table), Columns: spec.Columns}, nil
}

func (d *decoder) insertDir(raw map[string]any, path string) (plan.Node, error) {
	var spec struct {
		Path   string         `mapstructure:"path"`
		Format string         `mapstructure:"format"`
		Query  map[string]any `mapstructure:"query"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	if spec.Path == "" {
		return nil, errf(path, "missing path")
	}
	query, err := d.query(spec.Query, path+".query")
	if err != nil {
		return nil, err
	}
	return &plan.InsertIntoDir{Path: spec.Path, Format: spec.Format, Query: query}, nil
}

type mergeActionSpec struct {
	Action    string           `mapstructure:"action"`
	Condition any              `mapstructure:"condition"`
	Star      bool             `mapstructure:"star"`
	Set       []assignmentSpec `mapstructure:"set"`
}

type assignmentSpec struct {
	Column string `mapstructure:"column"`
	Value  any    `mapstructure:"value"`
}

var mergeActionTypes = map[string]plan.MergeActionType{
	"update": plan.MergeUpdate,
	"delete": plan.MergeDelete,
	"insert": plan.MergeInsert,
}

func (d *decoder) merge(raw map[string]any, path string) (plan.Node, error) {
	var spec struct {
		Table      string            `mapstructure:"table"`
		Target     map[string]any    `mapstructure:"target"`
		Source     map[string]any    `mapstructure:"source"`
		On         any               `mapstructure:"on"`
		Matched    []mergeActionSpec `mapstructure:"matched"`
		NotMatched []mergeActionSpec `mapstructure:"not_matched"`
	}
	if err := decodeInto(raw, &spec, path); err != nil {
		return nil, err
	}
	if spec.Table == "" {
		return nil, errf(path, "missing table")
	}
	if spec.Target == nil {
		return nil, errf(path, "missing target")
	}
	if spec.Source == nil {
		return nil, errf(path, "missing source")
	}
	target, err := d.node(spec.Target, nil, path+".target")
	if err != nil {
		return nil, err
	}
	source, err := d.node(spec.Source, nil, path+".source")
	if err != nil {
		return nil, err
	}

	// Merge conditions and assignments see both schemas, target first.
	cols := make([]plan.Column, 0, len(target.Output())+len(source.Output()))
	cols = append(cols, target.Output()...)
	cols = append(cols, source.Output()...)
	sc := &scope{cols: cols}

	m := &plan.MergeInto{Table: plan.ParseName(spec.Table), Target: target, Source: source}
	if spec.On != nil {
		cond, err := d.expr(spec.On, sc, path+".on")
		if err != nil {
			return nil, err
		}
		m.Condition = cond
	}
	if m.Matched, err = d.mergeActions(spec.Matched, sc, path+".matched"); err != nil {
		return nil, err
	}
	if m.NotMatched, err = d.mergeActions(spec.NotMatched, sc, path+".not_matched"); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *decoder) mergeActions(specs []mergeActionSpec, sc *scope, path string) ([]plan.MergeAction, error) {
	out := make([]plan.MergeAction, len(specs))
	for i, as := range specs {
		p := fmt.Sprintf("%s[%d]", path, i)
		at, ok := mergeActionTypes[as.Action]
		if !ok {
			return nil, errf(p, "unknown merge action %q", as.Action)
		}
		action := plan.MergeAction{Type: at, Star: as.Star}
		if as.Condition != nil {
			cond, err := d.expr(as.Condition, sc, p+".condition")
			if err != nil {
				return nil, err
			}
			action.Condition = cond
		}
		for j, setSpec := range as.Set {
			sp := fmt.Sprintf("%s.set[%d]", p, j)
			if setSpec.Column == "" {
				return nil, errf(sp, "missing column")
			}
			value, err := d.expr(setSpec.Value, sc, sp)
			if err != nil {
				return nil, err
			}
			action.Assignments = append(action.Assignments, plan.Assignment{
				Column: setSpec.Column,
				Value:  value,
			})
		}
		out[i] = action
	}
	return out, nil
}
