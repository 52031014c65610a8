package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/traceline/internal/state"
	"github.com/leapstack-labs/traceline/internal/testutil"
)

const sampleDocument = `
version: 1
plans:
  - name: daily
    root:
      op: create_table_as
      table: sales.daily
      query:
        op: project
        columns:
          - {name: amount, expr: amount}
          - {name: ds, expr: {lit: "2026-08-30"}}
        child: {op: relation, table: sales.orders, columns: [amount]}
`

func newTestServer(t *testing.T, store state.Store) *httptest.Server {
	t.Helper()
	srv, err := New(Config{Store: store, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newTestStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	store, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func postDocument(t *testing.T, url, doc string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/yaml", strings.NewReader(doc))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExtractLineage(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := postDocument(t, ts.URL+"/api/v1/lineage", sampleDocument)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got extractionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got.Results, 1)
	assert.Equal(t, "daily", got.Results[0].Name)

	lin := got.Results[0].Lineage
	require.NotNil(t, lin)
	require.Len(t, lin.Columns, 2)
	assert.Equal(t, "sales.daily.amount", lin.Columns[0].Name)
	require.Len(t, lin.Columns[0].Sources, 1)
	assert.Empty(t, lin.Columns[1].Sources)
}

func TestExtractMalformedDocument(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := postDocument(t, ts.URL+"/api/v1/lineage", "version: 1\nplans:\n  - root: {op: teleport}\n")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var got errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Contains(t, got.Error, "teleport")
}

func TestExtractSaveWithoutStore(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := postDocument(t, ts.URL+"/api/v1/lineage?save=1", sampleDocument)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSaveAndHistoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ts := newTestServer(t, store)

	resp := postDocument(t, ts.URL+"/api/v1/lineage?save=1", sampleDocument)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var extracted extractionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&extracted))
	require.Len(t, extracted.Results, 1)
	id := extracted.Results[0].ID
	require.NotEmpty(t, id)

	// The saved record is listed.
	listResp, err := http.Get(ts.URL + "/api/v1/statements")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var listed struct {
		Statements []statementSummary `json:"statements"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listed))
	require.Len(t, listed.Statements, 1)
	assert.Equal(t, id, listed.Statements[0].ID)
	assert.Equal(t, []string{"sales.orders"}, listed.Statements[0].Sources)
	assert.Equal(t, []string{"sales.daily"}, listed.Statements[0].Targets)

	// And retrievable in full.
	getResp, err := http.Get(ts.URL + "/api/v1/statements/" + id)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var got extractionResult
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&got))
	assert.Equal(t, "daily", got.Name)
	require.NotNil(t, got.Lineage)
	assert.Len(t, got.Lineage.Columns, 2)

	// Delete and confirm it is gone.
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/statements/"+id, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	missing, err := http.Get(ts.URL + "/api/v1/statements/" + id)
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServerCatalogResolvesViews(t *testing.T) {
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(`
version: 1
catalog:
  views:
    - name: sales.v_orders
      plan:
        op: project
        columns:
          - {name: amount, expr: amount}
        child: {op: relation, table: sales.orders, columns: [amount]}
`), 0o644))

	srv, err := New(Config{CatalogPath: catalogPath, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp := postDocument(t, ts.URL+"/api/v1/lineage", `
version: 1
plans:
  - root: {op: relation, table: sales.v_orders, columns: [amount]}
`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got extractionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got.Results, 1)
	require.Len(t, got.Results[0].Lineage.Columns, 1)
	require.Len(t, got.Results[0].Lineage.Columns[0].Sources, 1)
	// The view inlines down to its base table.
	assert.Equal(t, "sales.orders", got.Results[0].Lineage.Columns[0].Sources[0].Table.String())
}

func TestStrictModeSurfacesUnsupported(t *testing.T) {
	// Every operator in the document format has a propagation rule, so
	// strict mode only changes behavior for hosts building plans
	// in-process. The flag still parses and extraction still succeeds.
	ts := newTestServer(t, nil)

	resp := postDocument(t, ts.URL+"/api/v1/lineage?strict=1", sampleDocument)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
