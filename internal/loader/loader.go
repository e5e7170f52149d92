// Package loader drives dataset loads. It resolves sparse matrix
// coordinates to gene and cell identifiers before bulk insertion, and
// parses cluster assignment tables.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/genobase/exprdb/internal/mtx"
	"github.com/genobase/exprdb/internal/store"
)

// countsSuffix joins the dataset base name to its three MTX files.
// The naming convention is fixed, not configurable.
const countsSuffix = ".aggregated_filtered_counts"

// EmptyIDPolicy decides what happens when a matrix row resolves to an
// empty gene identifier.
type EmptyIDPolicy int

const (
	// PolicyWarn logs a diagnostic and inserts the record anyway.
	PolicyWarn EmptyIDPolicy = iota
	// PolicyReject aborts the load.
	PolicyReject
)

// ParsePolicy maps a config string to an EmptyIDPolicy.
func ParsePolicy(s string) (EmptyIDPolicy, error) {
	switch s {
	case "", "warn":
		return PolicyWarn, nil
	case "reject":
		return PolicyReject, nil
	default:
		return PolicyWarn, fmt.Errorf("unknown empty-id policy %q (want warn or reject)", s)
	}
}

// LookupError reports a matrix ordinal with no entry in its
// identifier index. It aborts the load before the current batch's
// insert; batches already committed stay committed.
type LookupError struct {
	Kind    string // "row" or "column"
	Ordinal int
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("no %s identifier at ordinal %d", e.Kind, e.Ordinal)
}

// Options configures a Loader.
type Options struct {
	BatchSize int
	Policy    EmptyIDPolicy
	Logger    *slog.Logger
}

// Loader loads MTX datasets and cluster tables into a store. Loads
// run synchronously on the caller's goroutine; exactly one loader
// should be active against a given store at a time.
type Loader struct {
	store     store.Store
	batchSize int
	policy    EmptyIDPolicy
	log       *slog.Logger
}

// New creates a Loader backed by st.
func New(st store.Store, opts Options) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = mtx.DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loader{
		store:     st,
		batchSize: opts.BatchSize,
		policy:    opts.Policy,
		log:       opts.Logger,
	}
}

// LoadMatrix loads one MTX dataset from dir. base names the dataset
// and prefixes its three files: <base>.aggregated_filtered_counts
// plus ".mtx_cols" (cell index), ".mtx_rows" (gene index), and
// "_matrix.mtx" (data). Each batch of triples is resolved through the
// indexes and bulk-inserted; the run is recorded in the loads table.
func (l *Loader) LoadMatrix(ctx context.Context, dir, base string) (*store.LoadRun, error) {
	prefix := filepath.Join(dir, base+countsSuffix)

	colIndex, err := mtx.ParseIdentifiers(prefix + ".mtx_cols")
	if err != nil {
		return nil, fmt.Errorf("parsing column identifiers: %w", err)
	}
	rowIndex, err := mtx.ParseIdentifiers(prefix + ".mtx_rows")
	if err != nil {
		return nil, fmt.Errorf("parsing row identifiers: %w", err)
	}

	stream, err := mtx.OpenBatchStream(prefix+"_matrix.mtx", l.batchSize)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	run := &store.LoadRun{
		ID:          uuid.NewString(),
		DatasetName: base,
		Kind:        store.LoadKindExpression,
		StartedAt:   time.Now().UTC(),
	}

	for stream.Next() {
		recs, err := l.resolveBatch(rowIndex, colIndex, stream.Batch())
		if err != nil {
			return nil, err
		}
		if err := l.store.InsertExpressionRecords(ctx, recs); err != nil {
			return nil, fmt.Errorf("inserting expression batch: %w", err)
		}
		run.Records += int64(len(recs))
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	run.FinishedAt = time.Now().UTC()
	if err := l.store.RecordLoad(ctx, run); err != nil {
		return nil, fmt.Errorf("recording load run: %w", err)
	}
	return run, nil
}

// resolveBatch maps each triple's ordinals to identifiers, preserving
// batch order. An empty batch resolves to an empty record set, which
// the store treats as a no-op insert.
func (l *Loader) resolveBatch(rowIndex, colIndex *mtx.IdentifierIndex, batch []mtx.Triple) ([]store.ExpressionRecord, error) {
	recs := make([]store.ExpressionRecord, 0, len(batch))
	for _, t := range batch {
		geneID, ok := rowIndex.Lookup(t.Row)
		if !ok {
			return nil, &LookupError{Kind: "row", Ordinal: t.Row}
		}
		cellID, ok := colIndex.Lookup(t.Col)
		if !ok {
			return nil, &LookupError{Kind: "column", Ordinal: t.Col}
		}
		if geneID == "" {
			if l.policy == PolicyReject {
				return nil, fmt.Errorf("empty gene identifier at row ordinal %d", t.Row)
			}
			l.log.Warn("empty gene identifier", "row_ordinal", t.Row, "cell_id", cellID)
		}
		recs = append(recs, store.ExpressionRecord{GeneID: geneID, CellID: cellID, Expr: t.Value})
	}
	return recs, nil
}
