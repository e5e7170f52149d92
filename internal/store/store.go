// Package store provides the SQLite storage layer for exprdb.
//
// All data lives in a single SQLite database file:
// - Resolved expression records (gene, cell, value)
// - Cluster assignments per dataset
// - An audit table of completed load runs
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.exprdb/expr.db"

// DefaultScanLimit caps ScanExpr/ScanClusters output when the caller
// passes no limit.
const DefaultScanLimit = 20

// Load kinds recorded in the loads audit table.
const (
	LoadKindExpression = "expression"
	LoadKindClusters   = "clusters"
)

// ExpressionRecord is one resolved matrix entry. (GeneID, CellID) is
// unique within a dataset load, enforced by the expr primary key.
type ExpressionRecord struct {
	GeneID string
	CellID string
	Expr   float64
}

// ClusterRecord assigns a cell to a metacluster/cluster pair within a
// dataset. A cell belongs to exactly one cluster per dataset.
type ClusterRecord struct {
	MetaclusterID int
	ClusterID     int
	CellID        string
	DatasetName   string
}

// LoadRun is one entry in the loads audit table. Because batches
// commit independently, a failed load leaves earlier batches behind;
// the audit table lets callers tell complete runs from aborted ones.
type LoadRun struct {
	ID          string
	DatasetName string
	Kind        string
	Records     int64
	StartedAt   time.Time
	FinishedAt  time.Time
}

// StoreStats holds observability counters about the store.
type StoreStats struct {
	ExpressionCount int64
	ClusterCount    int64
	LoadCount       int64
	DBSizeBytes     int64
}

// Config holds configuration for NewStore.
type Config struct {
	DBPath string
}

// Store defines the storage operations the loaders and CLI depend on.
type Store interface {
	// Bulk inserts. Both are parameterized and transactional; an
	// empty record slice is a no-op.
	InsertExpressionRecords(ctx context.Context, recs []ExpressionRecord) error
	InsertClusterRecords(ctx context.Context, recs []ClusterRecord) error

	// Reads
	ScanExpr(ctx context.Context, limit int) ([]ExpressionRecord, error)
	ScanClusters(ctx context.Context, limit int) ([]ClusterRecord, error)
	Query(ctx context.Context, query string) ([]string, [][]string, error)

	// Load audit
	RecordLoad(ctx context.Context, run *LoadRun) error
	ListLoads(ctx context.Context, limit int) ([]*LoadRun, error)
	DatasetLoaded(ctx context.Context, datasetName string) (bool, error)

	// Observability and maintenance
	Stats(ctx context.Context) (*StoreStats, error)
	Reset(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (or creates) the database at cfg.DBPath and ensures
// the schema exists. Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg Config) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = ExpandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Exists reports whether a database file is already present at path.
func Exists(path string) bool {
	if path == "" {
		path = ExpandPath(DefaultDBPath)
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GetDB exposes the underlying connection for callers that need raw
// SQL access (MCP resources, tests).
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats returns record counts and the database file size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	counts := []struct {
		query string
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM expr", &stats.ExpressionCount},
		{"SELECT COUNT(*) FROM clusters", &stats.ClusterCount},
		{"SELECT COUNT(*) FROM loads", &stats.LoadCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("counting rows: %w", err)
		}
	}

	if s.dbPath != ":memory:" {
		if info, err := os.Stat(s.dbPath); err == nil {
			stats.DBSizeBytes = info.Size()
		}
	}
	return stats, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
