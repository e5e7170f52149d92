package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/genobase/exprdb/internal/store"
	"github.com/mark3labs/mcp-go/server"
)

// setupTestStore creates an in-memory store with a few records.
func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewStore(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if err := s.InsertExpressionRecords(ctx, []store.ExpressionRecord{
		{GeneID: "g1", CellID: "c1", Expr: 0.5},
		{GeneID: "g2", CellID: "c2", Expr: 1.25},
	}); err != nil {
		t.Fatalf("seeding expression records: %v", err)
	}
	if err := s.InsertClusterRecords(ctx, []store.ClusterRecord{
		{MetaclusterID: 1, ClusterID: 10, CellID: "c1", DatasetName: "datasetX"},
	}); err != nil {
		t.Fatalf("seeding cluster records: %v", err)
	}
	return s
}

// callTool invokes an MCP tool through the server's message handler.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) (string, bool) {
	t.Helper()

	raw, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	result := srv.HandleMessage(context.Background(), raw)
	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result.Content) == 0 {
		t.Fatal("no content in tool result")
	}
	return resp.Result.Content[0].Text, resp.Result.IsError
}

func newTestServer(t *testing.T, s store.Store) *server.MCPServer {
	t.Helper()
	srv := NewServer(ServerConfig{Store: s})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
	return srv
}

func TestQueryTool(t *testing.T) {
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	text, isErr := callTool(t, srv, "exprdb_query", map[string]interface{}{
		"sql": "SELECT gene_id FROM expr WHERE expr > 1.0",
	})
	if isErr {
		t.Fatalf("query tool returned error: %s", text)
	}

	var payload struct {
		Columns []string   `json:"columns"`
		Rows    [][]string `json:"rows"`
		Count   int        `json:"count"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("parsing query payload: %v", err)
	}
	if payload.Count != 1 || payload.Rows[0][0] != "g2" {
		t.Errorf("unexpected query payload: %+v", payload)
	}
}

func TestQueryTool_InvalidSQL(t *testing.T) {
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	text, isErr := callTool(t, srv, "exprdb_query", map[string]interface{}{
		"sql": "SELECT nothing FROM nowhere",
	})
	if !isErr {
		t.Fatalf("expected tool error, got: %s", text)
	}
}

func TestScanTool(t *testing.T) {
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	text, isErr := callTool(t, srv, "exprdb_scan", map[string]interface{}{
		"table": "clusters",
	})
	if isErr {
		t.Fatalf("scan tool returned error: %s", text)
	}

	var recs []store.ClusterRecord
	if err := json.Unmarshal([]byte(text), &recs); err != nil {
		t.Fatalf("parsing scan payload: %v", err)
	}
	if len(recs) != 1 || recs[0].CellID != "c1" {
		t.Errorf("unexpected scan payload: %+v", recs)
	}
}

func TestStatsTool(t *testing.T) {
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	text, isErr := callTool(t, srv, "exprdb_stats", nil)
	if isErr {
		t.Fatalf("stats tool returned error: %s", text)
	}
	if !strings.Contains(text, "expression_records") {
		t.Errorf("expected stats payload, got: %s", text)
	}
}

func TestLoadTool(t *testing.T) {
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	dir := t.TempDir()
	prefix := filepath.Join(dir, "ds.aggregated_filtered_counts")
	fixtures := map[string]string{
		prefix + ".mtx_cols":   "cA\n",
		prefix + ".mtx_rows":   "gA\n",
		prefix + "_matrix.mtx": "1 1 3.5\n",
	}
	for path, content := range fixtures {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing fixture: %v", err)
		}
	}

	text, isErr := callTool(t, srv, "exprdb_load", map[string]interface{}{
		"dir":  dir,
		"base": "ds",
	})
	if isErr {
		t.Fatalf("load tool returned error: %s", text)
	}
	if !strings.Contains(text, "\"records\": 1") {
		t.Errorf("unexpected load payload: %s", text)
	}

	// A second load of the same dataset is refused.
	text, isErr = callTool(t, srv, "exprdb_load", map[string]interface{}{
		"dir":  dir,
		"base": "ds",
	})
	if !isErr || !strings.Contains(text, "already loaded") {
		t.Errorf("expected already-loaded refusal, got: %s", text)
	}
}

func TestLoadClustersTool(t *testing.T) {
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	dir := filepath.Join(t.TempDir(), "datasetY")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "clusters.tsv"), []byte("2\t20\tcellZ\n"), 0644); err != nil {
		t.Fatalf("writing cluster file: %v", err)
	}

	text, isErr := callTool(t, srv, "exprdb_load_clusters", map[string]interface{}{
		"dir": dir,
	})
	if isErr {
		t.Fatalf("load clusters tool returned error: %s", text)
	}
	if !strings.Contains(text, "datasetY") {
		t.Errorf("expected dataset name in payload: %s", text)
	}
}

func TestStatsResource(t *testing.T) {
	s := setupTestStore(t)
	srv := newTestServer(t, s)

	raw, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "resources/read",
		"params": map[string]interface{}{
			"uri": "exprdb://stats",
		},
	})

	result := srv.HandleMessage(context.Background(), raw)
	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var resp struct {
		Result struct {
			Contents []struct {
				URI  string `json:"uri"`
				Text string `json:"text"`
			} `json:"contents"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %s", resp.Error.Message)
	}
	if len(resp.Result.Contents) == 0 || !strings.Contains(resp.Result.Contents[0].Text, "expression_records") {
		t.Errorf("unexpected resource payload: %+v", resp.Result)
	}
}
