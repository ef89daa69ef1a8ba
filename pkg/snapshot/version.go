// Package snapshot decides whether a freshly assembled dataset differs from
// the previously persisted snapshot and, on change, publishes both
// encodings together with a patch-version bump.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
)

// versionRecord is the wire shape of the persisted version marker.
type versionRecord struct {
	Version string `json:"version"`
}

// MalformedVersionError is a persisted version record whose value is not a
// plain MAJOR.MINOR.PATCH triple of non-negative integers (or that cannot
// be read at all). It is fatal: no snapshot write happens without a
// successful version bump.
type MalformedVersionError struct {
	Path  string
	Value string
	Err   error
}

// Error implements the error interface.
func (e *MalformedVersionError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("version record %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("version record %s: malformed version %q: %v", e.Path, e.Value, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *MalformedVersionError) Unwrap() error {
	return e.Err
}

// ReadVersion reads and strictly parses the persisted version record. A
// missing file counts as malformed: the record is part of the published
// tree and its absence means the snapshot directory is misconfigured.
func ReadVersion(path string) (*semver.Version, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &MalformedVersionError{Path: path, Err: err}
	}

	var rec versionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &MalformedVersionError{Path: path, Err: err}
	}

	v, err := semver.StrictNewVersion(rec.Version)
	if err != nil {
		return nil, &MalformedVersionError{Path: path, Value: rec.Version, Err: err}
	}
	if v.Prerelease() != "" || v.Metadata() != "" {
		return nil, &MalformedVersionError{
			Path:  path,
			Value: rec.Version,
			Err:   fmt.Errorf("expected plain MAJOR.MINOR.PATCH"),
		}
	}
	return v, nil
}

// BumpPatch returns the version with PATCH incremented by one.
func BumpPatch(v *semver.Version) *semver.Version {
	next := v.IncPatch()
	return &next
}

// encodeVersion renders the version record for persistence.
func encodeVersion(v *semver.Version) ([]byte, error) {
	out, err := json.Marshal(versionRecord{Version: v.String()})
	if err != nil {
		return nil, fmt.Errorf("encode version record: %w", err)
	}
	return append(out, '\n'), nil
}
