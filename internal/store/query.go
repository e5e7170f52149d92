package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Query executes an arbitrary SQL statement and fetches every row of
// the result set as strings. This is the escape hatch for ad-hoc
// downstream querying; the typed Scan methods cover the common paths.
func (s *SQLiteStore) Query(ctx context.Context, query string) ([]string, [][]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("reading columns: %w", err)
	}

	var out [][]string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		dests := make([]interface{}, len(cols))
		for i := range values {
			dests[i] = &values[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, nil, fmt.Errorf("scanning query row: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			if v.Valid {
				row[i] = v.String
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating query rows: %w", err)
	}
	return cols, out, nil
}
