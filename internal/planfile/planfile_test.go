package planfile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/traceline/internal/planfile"
	"github.com/leapstack-labs/traceline/pkg/lineage"
	"github.com/leapstack-labs/traceline/pkg/plan"
)

func decode(t *testing.T, doc string) *planfile.Document {
	t.Helper()
	d, err := planfile.Decode([]byte(doc))
	require.NoError(t, err)
	return d
}

// ---------- Document Structure ----------

func TestDecodeBareScan(t *testing.T) {
	doc := decode(t, `
version: 1
plans:
  - name: scan
    root:
      op: relation
      table: sales.orders
      columns: [id, amount]
`)
	require.Len(t, doc.Plans, 1)
	assert.Equal(t, "scan", doc.Plans[0].Name)

	rel, ok := doc.Plans[0].Root.(*plan.Relation)
	require.True(t, ok)
	assert.Equal(t, plan.Name("sales", "orders"), rel.Name)
	require.Len(t, rel.Columns, 2)
	assert.Equal(t, "id", rel.Columns[0].Name)
	assert.NotZero(t, rel.Columns[0].ID)
	assert.NotEqual(t, rel.Columns[0].ID, rel.Columns[1].ID)
}

func TestDecodeJSONDocument(t *testing.T) {
	doc := decode(t, `{
  "version": 1,
  "plans": [
    {"name": "j", "root": {"op": "relation", "table": "t", "columns": ["a"]}}
  ]
}`)
	require.Len(t, doc.Plans, 1)
	assert.Equal(t, "j", doc.Plans[0].Name)
}

func TestVersionMismatch(t *testing.T) {
	_, err := planfile.Decode([]byte("version: 2\nplans: []\n"))
	var derr *planfile.DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "version", derr.Path)
}

func TestDeclaredTableSchema(t *testing.T) {
	doc := decode(t, `
version: 1
catalog:
  tables:
    - name: sales.orders
      columns: [id, amount, region]
plans:
  - root:
      op: relation
      table: sales.orders
`)
	rel := doc.Plans[0].Root.(*plan.Relation)
	require.Len(t, rel.Columns, 3)
	assert.Equal(t, "region", rel.Columns[2].Name)
}

func TestUndeclaredTableNeedsColumns(t *testing.T) {
	_, err := planfile.Decode([]byte(`
version: 1
plans:
  - root:
      op: relation
      table: mystery
`))
	var derr *planfile.DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "plans[0].root", derr.Path)
	assert.Contains(t, derr.Message, "mystery")
}

// ---------- Column Binding ----------

func TestProjectBindsAndRenames(t *testing.T) {
	doc := decode(t, `
version: 1
plans:
  - root:
      op: project
      columns:
        - {name: order_id, expr: id}
        - {name: total, expr: {fn: round, args: [amount]}}
      child:
        op: relation
        table: orders
        columns: [id, amount]
`)
	proj := doc.Plans[0].Root.(*plan.Project)
	rel := proj.Child.(*plan.Relation)
	require.Len(t, proj.Projections, 2)

	// A bare reference keeps the child column's identity under its new
	// name; a computed expression gets a fresh one.
	assert.Equal(t, rel.Columns[0].ID, proj.Projections[0].Col.ID)
	assert.Equal(t, "order_id", proj.Projections[0].Col.Name)
	assert.NotEqual(t, rel.Columns[1].ID, proj.Projections[1].Col.ID)
}

func TestUnknownColumnReportsPath(t *testing.T) {
	_, err := planfile.Decode([]byte(`
version: 1
plans:
  - root:
      op: project
      columns:
        - {name: a, expr: id}
        - {name: b, expr: nope}
      child: {op: relation, table: t, columns: [id]}
`))
	var derr *planfile.DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "plans[0].root.columns[1]", derr.Path)
	assert.Contains(t, derr.Message, `unknown column "nope"`)
}

func TestColumnResolutionIsCaseInsensitive(t *testing.T) {
	doc := decode(t, `
version: 1
plans:
  - root:
      op: project
      columns:
        - {name: a, expr: ID}
      child: {op: relation, table: t, columns: [id]}
`)
	proj := doc.Plans[0].Root.(*plan.Project)
	rel := proj.Child.(*plan.Relation)
	assert.Equal(t, rel.Columns[0].ID, proj.Projections[0].Col.ID)
}

func TestCorrelatedSubqueryBindsOuterColumn(t *testing.T) {
	doc := decode(t, `
version: 1
plans:
  - root:
      op: filter
      condition:
        exists:
          op: filter
          condition: {op: "=", left: region, right: customer}
          child: {op: relation, table: regions, columns: [region]}
      child: {op: relation, table: orders, columns: [customer]}
`)
	outerFilter := doc.Plans[0].Root.(*plan.Filter)
	orders := outerFilter.Child.(*plan.Relation)

	exists := outerFilter.Condition.(*plan.ExistsSubquery)
	innerFilter := exists.Plan.(*plan.Filter)
	cond := innerFilter.Condition.(*plan.BinaryExpr)
	right := cond.Right.(*plan.ColumnRef)
	assert.Equal(t, orders.Columns[0].ID, right.ID)
}

// ---------- Operators ----------

func TestDecodeJoinUnionWindow(t *testing.T) {
	doc := decode(t, `
version: 1
plans:
  - root:
      op: union
      all: true
      inputs:
        - op: join
          type: left
          condition: {op: "=", left: id, right: oid}
          left: {op: relation, table: t, columns: [id]}
          right: {op: relation, table: u, columns: [oid]}
        - op: window
          functions:
            - name: rn
              expr:
                win:
                  func: {fn: row_number}
                  partition_by: [a]
                  order_by: [{expr: b, desc: true}]
          child: {op: relation, table: v, columns: [a, b]}
`)
	setOp := doc.Plans[0].Root.(*plan.SetOp)
	require.Len(t, setOp.Inputs, 2)
	assert.True(t, setOp.All)
	assert.Equal(t, plan.UnionOp, setOp.Type)

	join := setOp.Inputs[0].(*plan.Join)
	assert.Equal(t, plan.LeftOuterJoin, join.Type)
	require.NotNil(t, join.Condition)

	win := setOp.Inputs[1].(*plan.Window)
	require.Len(t, win.Functions, 1)
	wc := win.Functions[0].Expr.(*plan.WindowCall)
	assert.Len(t, wc.PartitionBy, 1)
	require.Len(t, wc.OrderBy, 1)
	assert.True(t, wc.OrderBy[0].Descending)
}

func TestDecodeExpandRowArity(t *testing.T) {
	_, err := planfile.Decode([]byte(`
version: 1
plans:
  - root:
      op: expand
      columns: [a, b]
      projections:
        - [a]
      child: {op: relation, table: t, columns: [a, b]}
`))
	var derr *planfile.DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "plans[0].root.projections[0]", derr.Path)
}

func TestUnknownOperator(t *testing.T) {
	_, err := planfile.Decode([]byte(`
version: 1
plans:
  - root: {op: teleport}
`))
	var derr *planfile.DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Message, `unknown operator "teleport"`)
}

func TestNestedCommandRejected(t *testing.T) {
	_, err := planfile.Decode([]byte(`
version: 1
plans:
  - root:
      op: filter
      condition: {lit: true}
      child:
        op: insert
        table: t
        query: {op: one_row}
`))
	var derr *planfile.DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "plans[0].root.child", derr.Path)
	assert.Contains(t, derr.Message, "plan root")
}

// ---------- Literals ----------

func TestLiteralInference(t *testing.T) {
	doc := decode(t, `
version: 1
plans:
  - root:
      op: project
      columns:
        - {name: n, expr: {lit: 42}}
        - {name: s, expr: {lit: hello}}
        - {name: b, expr: {lit: false}}
        - {name: z, expr: {lit: null}}
        - {name: forced, expr: {lit: "7", type: number}}
      child: {op: one_row}
`)
	proj := doc.Plans[0].Root.(*plan.Project)
	types := []plan.LiteralType{
		plan.LiteralNumber, plan.LiteralString, plan.LiteralBool, plan.LiteralNull, plan.LiteralNumber,
	}
	for i, want := range types {
		lit := proj.Projections[i].Expr.(*plan.Literal)
		assert.Equal(t, want, lit.Type, "projection %d", i)
	}
	assert.Equal(t, "42", proj.Projections[0].Expr.(*plan.Literal).Value)
}

// ---------- Commands ----------

func TestDecodeInsertWithPartition(t *testing.T) {
	doc := decode(t, `
version: 1
plans:
  - root:
      op: insert
      table: sales.daily
      overwrite: true
      partition:
        - {name: ds, value: "2026-08-30"}
        - {name: region}
      query: {op: relation, table: orders, columns: [id, region]}
`)
	ins := doc.Plans[0].Root.(*plan.InsertIntoTable)
	assert.True(t, ins.Overwrite)
	require.Len(t, ins.Partition, 2)
	assert.True(t, ins.Partition[0].IsStatic())
	assert.False(t, ins.Partition[1].IsStatic())
}

func TestDecodeMerge(t *testing.T) {
	doc := decode(t, `
version: 1
plans:
  - root:
      op: merge
      table: dim.customers
      target: {op: relation, table: dim.customers, columns: [id, name]}
      source: {op: relation, table: staging.customers, columns: [id, name]}
      on: {op: "=", left: id, right: id}
      matched:
        - action: update
          set:
            - {column: name, value: name}
      not_matched:
        - action: insert
          star: true
`)
	m := doc.Plans[0].Root.(*plan.MergeInto)
	assert.Equal(t, plan.Name("dim", "customers"), m.Table)
	require.Len(t, m.Matched, 1)
	assert.Equal(t, plan.MergeUpdate, m.Matched[0].Type)
	require.Len(t, m.Matched[0].Assignments, 1)
	require.Len(t, m.NotMatched, 1)
	assert.True(t, m.NotMatched[0].Star)
}

// ---------- Catalog Section ----------

func TestCatalogViewsAndCachesFeedExtraction(t *testing.T) {
	doc := decode(t, `
version: 1
catalog:
  views:
    - name: sales.v_orders
      plan:
        op: project
        columns:
          - {name: amount, expr: amount}
        child: {op: relation, table: sales.orders, columns: [amount]}
  caches:
    - key: frag-1
      plan: {op: relation, table: sales.refunds, columns: [amount]}
plans:
  - root:
      op: join
      type: cross
      left: {op: relation, table: sales.v_orders, columns: [amount]}
      right: {op: cached, key: frag-1, columns: [amount]}
`)
	assert.Equal(t, 2, doc.Catalog.Len())

	got, err := lineage.ExtractWithOptions(doc.Plans[0].Root, lineage.Options{
		Catalog: doc.Catalog,
		Caches:  doc.Catalog,
	})
	require.NoError(t, err)
	require.Len(t, got.Columns, 2)
	require.Len(t, got.Columns[0].Sources, 1)
	assert.Equal(t, plan.Name("sales", "orders"), got.Columns[0].Sources[0].Table)
	require.Len(t, got.Columns[1].Sources, 1)
	assert.Equal(t, plan.Name("sales", "refunds"), got.Columns[1].Sources[0].Table)
}

func TestEachPlanGetsItsOwnIdentitySpace(t *testing.T) {
	doc := decode(t, `
version: 1
plans:
  - root: {op: relation, table: t, columns: [a]}
  - root: {op: relation, table: u, columns: [b]}
`)
	first := doc.Plans[0].Root.(*plan.Relation)
	second := doc.Plans[1].Root.(*plan.Relation)
	assert.Equal(t, first.Columns[0].ID, second.Columns[0].ID)
}
