package store

import (
	"context"
	"fmt"
)

// InsertClusterRecords inserts a cluster file's records in a single
// transaction with bound parameters. Cluster files are small relative
// to matrix files, so the whole file arrives as one call. An empty
// slice is a no-op.
func (s *SQLiteStore) InsertClusterRecords(ctx context.Context, recs []ClusterRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO clusters (metacluster_id, cluster_id, cell_id, dataset_name) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, r.MetaclusterID, r.ClusterID, r.CellID, r.DatasetName); err != nil {
			return fmt.Errorf("inserting cluster record for cell %q: %w", r.CellID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cluster records: %w", err)
	}
	return nil
}

// ScanClusters returns up to limit cluster records, in primary-key
// order. Limit defaults to DefaultScanLimit.
func (s *SQLiteStore) ScanClusters(ctx context.Context, limit int) ([]ClusterRecord, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT metacluster_id, cluster_id, cell_id, dataset_name
		 FROM clusters ORDER BY metacluster_id, cluster_id, cell_id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning clusters: %w", err)
	}
	defer rows.Close()

	var recs []ClusterRecord
	for rows.Next() {
		var r ClusterRecord
		if err := rows.Scan(&r.MetaclusterID, &r.ClusterID, &r.CellID, &r.DatasetName); err != nil {
			return nil, fmt.Errorf("scanning cluster row: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
