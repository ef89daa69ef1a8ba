package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
)

// EncodeCSV serializes the dataset as CSV. The header row is the field set
// of the first record in source order; every record is rendered against
// that header. Cell rules:
//
//   - string values are written raw (unquoted JSON text)
//   - null or absent fields become empty cells
//   - nested objects and arrays are flattened to compact JSON text
//   - numbers and booleans keep the source's exact textual form
//
// Quoting (cells containing the separator, a quote, or a newline are
// quoted with internal quotes doubled) is RFC 4180 via encoding/csv.
// An empty dataset encodes to empty output.
func EncodeCSV(d *Dataset) ([]byte, error) {
	if len(d.Records) == 0 {
		return []byte{}, nil
	}

	header := d.Records[0].Keys()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("encode csv: header: %w", err)
	}

	for i, rec := range d.Records {
		row := make([]string, len(header))
		for j, name := range header {
			raw, ok := rec.Get(name)
			if !ok {
				continue
			}
			row[j] = cellText(raw)
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("encode csv: record %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

// cellText renders one raw JSON value as CSV cell content, before any
// cell-level quoting.
func cellText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}

	switch trimmed[0] {
	case 'n': // null
		return ""
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
		return string(trimmed)
	case '{', '[':
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err == nil {
			return compact.String()
		}
		return string(trimmed)
	default: // number, true, false
		return string(trimmed)
	}
}
