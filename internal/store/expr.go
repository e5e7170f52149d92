package store

import (
	"context"
	"fmt"
)

// InsertExpressionRecords inserts one batch of resolved expression
// records in a single transaction using a prepared statement. The
// values are always bound parameters, never interpolated SQL. An
// empty batch is a no-op. A duplicate (gene_id, cell_id) pair fails
// the whole batch with a constraint violation.
func (s *SQLiteStore) InsertExpressionRecords(ctx context.Context, recs []ExpressionRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO expr (gene_id, cell_id, expr) VALUES (?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, r.GeneID, r.CellID, r.Expr); err != nil {
			return fmt.Errorf("inserting expression record (%s, %s): %w", r.GeneID, r.CellID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing expression batch: %w", err)
	}
	return nil
}

// ScanExpr returns up to limit expression records, in primary-key
// order. Limit defaults to DefaultScanLimit.
func (s *SQLiteStore) ScanExpr(ctx context.Context, limit int) ([]ExpressionRecord, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT gene_id, cell_id, expr FROM expr ORDER BY gene_id, cell_id LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning expr: %w", err)
	}
	defer rows.Close()

	var recs []ExpressionRecord
	for rows.Next() {
		var r ExpressionRecord
		if err := rows.Scan(&r.GeneID, &r.CellID, &r.Expr); err != nil {
			return nil, fmt.Errorf("scanning expr row: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
