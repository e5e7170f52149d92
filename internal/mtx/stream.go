package mtx

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultBatchSize bounds in-memory accumulation per batch. Sparse
// matrices can run to millions of entries; a bounded batch keeps peak
// memory flat while amortizing per-statement insert overhead.
const DefaultBatchSize = 1024

// Triple is one nonzero matrix entry: 1-based row and column ordinals
// plus the expression value.
type Triple struct {
	Row   int
	Col   int
	Value float64
}

// ParseError reports a malformed line in a data file. It aborts the
// surrounding load; there is no per-line recovery.
type ParseError struct {
	Path   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Reason)
}

// BatchStream reads an MTX data file once, yielding batches of at
// most size triples in file order. Comment lines (first non-whitespace
// byte '%') are skipped and never counted toward a batch. After the
// last line, the in-progress batch is emitted as the final element
// even when short or empty, so a file with no data lines yields
// exactly one empty batch.
//
// The stream is one-pass and non-restartable. Usage follows the
// bufio.Scanner pattern:
//
//	stream, err := mtx.OpenBatchStream(path, mtx.DefaultBatchSize)
//	if err != nil { ... }
//	defer stream.Close()
//	for stream.Next() {
//		process(stream.Batch())
//	}
//	if err := stream.Err(); err != nil { ... }
type BatchStream struct {
	path    string
	f       *os.File
	scanner *bufio.Scanner
	size    int
	line    int

	batch []Triple
	err   error
	done  bool
}

// OpenBatchStream opens path for batch streaming. Size must be at
// least 1.
func OpenBatchStream(path string, size int) (*BatchStream, error) {
	if size < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", size)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening matrix file: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &BatchStream{path: path, f: f, scanner: scanner, size: size}, nil
}

// Next advances to the next batch, returning false once the stream is
// exhausted or failed; check Err after the loop. The slice returned
// by Batch is only valid until the following call to Next.
func (s *BatchStream) Next() bool {
	if s.done {
		return false
	}

	s.batch = s.batch[:0]
	for s.scanner.Scan() {
		s.line++
		line := strings.TrimSpace(s.scanner.Text())
		if strings.HasPrefix(line, "%") {
			continue
		}
		t, err := s.parseTriple(line)
		if err != nil {
			s.fail(err)
			return false
		}
		s.batch = append(s.batch, t)
		if len(s.batch) == s.size {
			return true
		}
	}
	if err := s.scanner.Err(); err != nil {
		s.fail(fmt.Errorf("reading %s: %w", s.path, err))
		return false
	}

	// End of input: the in-progress batch, short or empty, is the
	// final element of the stream.
	s.done = true
	s.Close()
	return true
}

// Batch returns the batch produced by the last successful Next.
func (s *BatchStream) Batch() []Triple {
	return s.batch
}

// Err returns the first error encountered while streaming, if any.
func (s *BatchStream) Err() error {
	return s.err
}

// Close releases the underlying file. It is safe to call more than
// once; terminal Next calls close the file themselves.
func (s *BatchStream) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *BatchStream) fail(err error) {
	s.err = err
	s.done = true
	s.Close()
}

func (s *BatchStream) parseTriple(line string) (Triple, error) {
	fields := strings.Split(line, " ")
	if len(fields) != 3 {
		return Triple{}, &ParseError{Path: s.path, Line: s.line,
			Reason: fmt.Sprintf("expected 3 space-separated fields, got %d", len(fields))}
	}
	row, err := strconv.Atoi(fields[0])
	if err != nil {
		return Triple{}, &ParseError{Path: s.path, Line: s.line,
			Reason: fmt.Sprintf("row ordinal %q is not an integer", fields[0])}
	}
	col, err := strconv.Atoi(fields[1])
	if err != nil {
		return Triple{}, &ParseError{Path: s.path, Line: s.line,
			Reason: fmt.Sprintf("column ordinal %q is not an integer", fields[1])}
	}
	value, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Triple{}, &ParseError{Path: s.path, Line: s.line,
			Reason: fmt.Sprintf("value %q is not a number", fields[2])}
	}
	return Triple{Row: row, Col: col, Value: value}, nil
}
