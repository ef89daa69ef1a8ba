package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeJSON serializes the dataset as a pretty-printed JSON array with
// two-space indentation and a trailing newline. Field order is preserved
// per record and HTML escaping is off, so the source's exact value bytes
// survive and the output is byte-stable for unchanged source data.
func EncodeJSON(d *Dataset) ([]byte, error) {
	records := d.Records
	if records == nil {
		records = []Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeJSON parses bytes produced by EncodeJSON back into a dataset.
// The declared total of the result is the parsed record count.
func DecodeJSON(b []byte) (*Dataset, error) {
	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return &Dataset{Records: records, DeclaredTotal: len(records)}, nil
}
