// Package mcp provides a Model Context Protocol server for exprdb.
//
// It exposes the expression database as MCP tools (query, scan, stats,
// load) and the store statistics as an MCP resource, over stdio
// transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/genobase/exprdb/internal/loader"
	"github.com/genobase/exprdb/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store     store.Store
	BatchSize int
	Policy    loader.EmptyIDPolicy
	Version   string
}

// dbMu serializes tool calls that touch the database. mcp-go
// dispatches handlers concurrently via goroutines, but the store
// assumes a single active writer.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all exprdb tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"exprdb",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	ld := loader.New(cfg.Store, loader.Options{BatchSize: cfg.BatchSize, Policy: cfg.Policy})

	registerQueryTool(s, cfg.Store)
	registerScanTool(s, cfg.Store)
	registerStatsTool(s, cfg.Store)
	registerLoadTool(s, cfg.Store, ld)
	registerLoadClustersTool(s, ld)

	registerStatsResource(s, cfg.Store)

	return s
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// --- Tools ---

func registerQueryTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("exprdb_query",
		mcp.WithDescription("Run a SQL query against the expression database. Tables: expr(gene_id, cell_id, expr), clusters(metacluster_id, cluster_id, cell_id, dataset_name), loads(id, dataset_name, kind, records, started_at, finished_at)."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("SQL query text"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		query, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql is required"), nil
		}

		cols, rows, err := st.Query(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query error: %v", err)), nil
		}

		payload := map[string]interface{}{
			"columns": cols,
			"rows":    rows,
			"count":   len(rows),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerScanTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("exprdb_scan",
		mcp.WithDescription("Scan the first rows of the expr or clusters table."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("table",
			mcp.Description("Table to scan: expr or clusters (default: expr)"),
			mcp.Enum("expr", "clusters"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of rows (default: 20, max: 500)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		table := "expr"
		if tbl, err := req.RequireString("table"); err == nil && tbl != "" {
			table = tbl
		}

		limit := store.DefaultScanLimit
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			if n := int(limitVal); n > 0 {
				limit = n
			}
			if limit > 500 {
				limit = 500
			}
		}

		var payload interface{}
		switch table {
		case "expr":
			recs, err := st.ScanExpr(ctx, limit)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("scan error: %v", err)), nil
			}
			payload = recs
		case "clusters":
			recs, err := st.ScanClusters(ctx, limit)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("scan error: %v", err)), nil
			}
			payload = recs
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown table %q", table)), nil
		}

		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("exprdb_stats",
		mcp.WithDescription("Get expression database statistics: record counts per table, completed load runs, and database size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		data, err := statsPayload(ctx, st)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerLoadTool(s *server.MCPServer, st store.Store, ld *loader.Loader) {
	tool := mcp.NewTool("exprdb_load",
		mcp.WithDescription("Load an MTX expression dataset from a directory. Expects <base>.aggregated_filtered_counts{.mtx_cols,.mtx_rows,_matrix.mtx} under dir."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("dir",
			mcp.Required(),
			mcp.Description("Directory containing the dataset files"),
		),
		mcp.WithString("base",
			mcp.Required(),
			mcp.Description("Dataset base name (file prefix and dataset name)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		dir, err := req.RequireString("dir")
		if err != nil {
			return mcp.NewToolResultError("dir is required"), nil
		}
		base, err := req.RequireString("base")
		if err != nil {
			return mcp.NewToolResultError("base is required"), nil
		}

		loaded, err := st.DatasetLoaded(ctx, base)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("checking dataset: %v", err)), nil
		}
		if loaded {
			return mcp.NewToolResultError(fmt.Sprintf("dataset %q already loaded", base)), nil
		}

		run, err := ld.LoadMatrix(ctx, dir, base)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(map[string]interface{}{
			"load_id": run.ID,
			"dataset": run.DatasetName,
			"records": run.Records,
			"message": fmt.Sprintf("Loaded %d expression records", run.Records),
		}, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerLoadClustersTool(s *server.MCPServer, ld *loader.Loader) {
	tool := mcp.NewTool("exprdb_load_clusters",
		mcp.WithDescription("Load a tab-separated cluster assignment file. The dataset name is taken from the directory's final path component."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("dir",
			mcp.Required(),
			mcp.Description("Dataset directory containing the cluster file"),
		),
		mcp.WithString("file",
			mcp.Description("Cluster file name (default: clusters.tsv)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		dir, err := req.RequireString("dir")
		if err != nil {
			return mcp.NewToolResultError("dir is required"), nil
		}

		fileName := ""
		if f, err := req.RequireString("file"); err == nil {
			fileName = f
		}

		run, err := ld.LoadClusters(ctx, dir, fileName)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(map[string]interface{}{
			"load_id": run.ID,
			"dataset": run.DatasetName,
			"records": run.Records,
			"message": fmt.Sprintf("Loaded %d cluster records", run.Records),
		}, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Resources ---

func registerStatsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"exprdb://stats",
		"Expression Database Stats",
		mcp.WithResourceDescription("Record counts, load runs, and database size."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		data, err := statsPayload(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("reading stats resource: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func statsPayload(ctx context.Context, st store.Store) ([]byte, error) {
	stats, err := st.Stats(ctx)
	if err != nil {
		return nil, err
	}
	runs, err := st.ListLoads(ctx, 10)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"expression_records": stats.ExpressionCount,
		"cluster_records":    stats.ClusterCount,
		"load_runs":          stats.LoadCount,
		"db_size_bytes":      stats.DBSizeBytes,
		"recent_loads":       runs,
	}
	data, _ := json.MarshalIndent(payload, "", "  ")
	return data, nil
}
