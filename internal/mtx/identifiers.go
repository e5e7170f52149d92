// Package mtx parses MTX-format sparse expression matrices and their
// row/column metadata sidecars.
//
// An MTX dataset is three text files: a data file listing nonzero
// entries as "<row> <col> <value>" triples (lines starting with '%'
// are comments), and two metadata files whose 1-based line numbers
// map matrix ordinals to gene and cell identifiers.
package mtx

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// IdentifierIndex maps a 1-based ordinal to a semantic identifier.
// Ordinals are line numbers in the source metadata file. Immutable
// after construction.
type IdentifierIndex struct {
	ids []string
}

// ParseIdentifiers builds an IdentifierIndex from a metadata file.
// Each line contributes one entry: the first tab-delimited field of
// the trimmed line, or the whole trimmed line if it has no tab.
// Duplicate identifiers are allowed; only ordinals are unique.
func ParseIdentifiers(path string) (*IdentifierIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata file: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '\t'); i >= 0 {
			line = line[:i]
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &IdentifierIndex{ids: ids}, nil
}

// Lookup returns the identifier at the given 1-based ordinal.
func (ix *IdentifierIndex) Lookup(ordinal int) (string, bool) {
	if ordinal < 1 || ordinal > len(ix.ids) {
		return "", false
	}
	return ix.ids[ordinal-1], true
}

// Len returns the number of identifiers in the index.
func (ix *IdentifierIndex) Len() int {
	return len(ix.ids)
}
