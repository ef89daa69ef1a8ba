package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Publisher owns the snapshot files and the version marker. The pipeline
// core never mutates them directly; it hands over fresh content plus the
// change decision.
type Publisher struct {
	JSONPath    string
	CSVPath     string
	VersionPath string

	logger zerolog.Logger
}

// NewPublisher creates a publisher for the given artifact paths.
func NewPublisher(jsonPath, csvPath, versionPath string) *Publisher {
	return &Publisher{
		JSONPath:    jsonPath,
		CSVPath:     csvPath,
		VersionPath: versionPath,
		logger:      log.With().Str("component", "publisher").Logger(),
	}
}

// Publish writes both encodings and the bumped version record, returning
// the new version string. The version record is read and bumped before any
// file is touched, so a malformed record aborts with zero writes.
//
// Each file is written via temp-file + rename, which is atomic per file.
// The three renames are not atomic as a group: a crash between them can
// leave the snapshots ahead of the version marker. The next successful run
// re-publishes all three.
func (p *Publisher) Publish(dec *Decision) (string, error) {
	current, err := ReadVersion(p.VersionPath)
	if err != nil {
		return "", err
	}
	next := BumpPatch(current)

	versionBytes, err := encodeVersion(next)
	if err != nil {
		return "", err
	}

	if err := writeAtomic(p.JSONPath, dec.JSON); err != nil {
		return "", err
	}
	if err := writeAtomic(p.CSVPath, dec.CSV); err != nil {
		return "", err
	}
	if err := writeAtomic(p.VersionPath, versionBytes); err != nil {
		return "", err
	}

	p.logger.Info().
		Str("version", next.String()).
		Int("json_bytes", len(dec.JSON)).
		Int("csv_bytes", len(dec.CSV)).
		Msg("Snapshot published")

	return next.String(), nil
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
