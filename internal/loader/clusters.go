package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genobase/exprdb/internal/mtx"
	"github.com/genobase/exprdb/internal/store"
)

// DefaultClusterFile is the conventional cluster table file name.
const DefaultClusterFile = "clusters.tsv"

// LoadClusters parses a tab-separated cluster assignment file
// (metacluster id, cluster id, cell id per line) and inserts the
// whole file in one call. The dataset name is the final path
// component of dir. A malformed line fails the load before anything
// is inserted.
func (l *Loader) LoadClusters(ctx context.Context, dir, fileName string) (*store.LoadRun, error) {
	if fileName == "" {
		fileName = DefaultClusterFile
	}
	datasetName := filepath.Base(filepath.Clean(dir))

	recs, err := parseClusterFile(filepath.Join(dir, fileName), datasetName)
	if err != nil {
		return nil, err
	}

	run := &store.LoadRun{
		ID:          uuid.NewString(),
		DatasetName: datasetName,
		Kind:        store.LoadKindClusters,
		Records:     int64(len(recs)),
		StartedAt:   time.Now().UTC(),
	}

	if err := l.store.InsertClusterRecords(ctx, recs); err != nil {
		return nil, fmt.Errorf("inserting cluster records: %w", err)
	}

	run.FinishedAt = time.Now().UTC()
	if err := l.store.RecordLoad(ctx, run); err != nil {
		return nil, fmt.Errorf("recording load run: %w", err)
	}
	return run, nil
}

func parseClusterFile(path, datasetName string) ([]store.ClusterRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cluster file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var recs []store.ClusterRecord
	line := 0
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, &mtx.ParseError{Path: path, Line: csvErr.Line, Reason: csvErr.Err.Error()}
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		metaclusterID, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, &mtx.ParseError{Path: path, Line: line,
				Reason: fmt.Sprintf("metacluster id %q is not an integer", fields[0])}
		}
		clusterID, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, &mtx.ParseError{Path: path, Line: line,
				Reason: fmt.Sprintf("cluster id %q is not an integer", fields[1])}
		}

		recs = append(recs, store.ClusterRecord{
			MetaclusterID: metaclusterID,
			ClusterID:     clusterID,
			CellID:        strings.TrimSpace(fields[2]),
			DatasetName:   datasetName,
		})
	}
	return recs, nil
}
