package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Sternrassler/dataset-sync/pkg/dataset"
)

// Decision is the outcome of one change-gate evaluation: both fresh
// encodings plus whether either differs from its persisted predecessor.
type Decision struct {
	JSON    []byte
	CSV     []byte
	Changed bool
}

// Gate serializes a dataset into both target encodings and compares each
// against the previously persisted bytes. It performs no writes.
type Gate struct {
	// JSONPath and CSVPath are the persisted snapshot locations.
	JSONPath string
	CSVPath  string
}

// Evaluate encodes the dataset and decides whether anything changed.
// Comparison is byte-exact, not semantic: whitespace or key-order drift
// counts as a change. A missing prior file is not an error — no prior
// snapshot always counts as changed.
func (g Gate) Evaluate(d *dataset.Dataset) (*Decision, error) {
	newJSON, err := dataset.EncodeJSON(d)
	if err != nil {
		return nil, err
	}
	newCSV, err := dataset.EncodeCSV(d)
	if err != nil {
		return nil, err
	}

	priorJSON, err := readPrior(g.JSONPath)
	if err != nil {
		return nil, err
	}
	priorCSV, err := readPrior(g.CSVPath)
	if err != nil {
		return nil, err
	}

	changed := !bytes.Equal(newJSON, priorJSON) || !bytes.Equal(newCSV, priorCSV)

	return &Decision{
		JSON:    newJSON,
		CSV:     newCSV,
		Changed: changed,
	}, nil
}

// readPrior loads a previously persisted encoding; absence yields nil.
func readPrior(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prior snapshot %s: %w", path, err)
	}
	return raw, nil
}
