package store

import (
	"context"
	"fmt"
)

// RecordLoad appends a completed load run to the loads audit table.
func (s *SQLiteStore) RecordLoad(ctx context.Context, run *LoadRun) error {
	if run.ID == "" {
		return fmt.Errorf("load run id cannot be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loads (id, dataset_name, kind, records, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.DatasetName, run.Kind, run.Records, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("recording load run: %w", err)
	}
	return nil
}

// ListLoads returns the most recent load runs, newest first.
func (s *SQLiteStore) ListLoads(ctx context.Context, limit int) ([]*LoadRun, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset_name, kind, records, started_at, finished_at
		 FROM loads ORDER BY finished_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing loads: %w", err)
	}
	defer rows.Close()

	var runs []*LoadRun
	for rows.Next() {
		run := &LoadRun{}
		if err := rows.Scan(&run.ID, &run.DatasetName, &run.Kind, &run.Records,
			&run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning load row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DatasetLoaded reports whether an expression load for datasetName has
// completed. Callers check this before loading to avoid duplicate-key
// failures on re-load.
func (s *SQLiteStore) DatasetLoaded(ctx context.Context, datasetName string) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM loads WHERE dataset_name = ? AND kind = ?",
		datasetName, LoadKindExpression,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking dataset %q: %w", datasetName, err)
	}
	return count > 0, nil
}
