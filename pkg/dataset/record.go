// Package dataset holds the record, page, and dataset types shared by the
// fetch pipeline, plus the JSON and CSV encodings of a full dataset.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is a single source record: a JSON object whose field order is
// preserved exactly as the source returned it. Values are kept as raw JSON
// so nested key order and the source's number formatting survive
// re-serialization (byte-exact change detection depends on both).
type Record struct {
	keys   []string
	fields map[string]json.RawMessage
}

// NewRecord creates an empty record.
func NewRecord() Record {
	return Record{fields: make(map[string]json.RawMessage)}
}

// Set adds or replaces a field. A new field is appended to the key order.
func (r *Record) Set(name string, value json.RawMessage) {
	if r.fields == nil {
		r.fields = make(map[string]json.RawMessage)
	}
	if _, ok := r.fields[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.fields[name] = value
}

// Keys returns the field names in source order.
func (r Record) Keys() []string {
	return r.keys
}

// Get returns the raw value of a field and whether it exists.
func (r Record) Get(name string) (json.RawMessage, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.keys)
}

// UnmarshalJSON decodes a JSON object via a token walk so the field order
// is captured. Duplicate keys keep their first position, last value wins.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}

	r.keys = nil
	r.fields = make(map[string]json.RawMessage)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("record: expected field name, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("record: field %q: %w", key, err)
		}

		if _, dup := r.fields[key]; !dup {
			r.keys = append(r.keys, key)
		}
		r.fields[key] = raw
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("record: %w", err)
	}

	return nil
}

// MarshalJSON encodes the record with its original field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("record: field %q: %w", key, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(r.fields[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Equal reports structural equality: same field names in the same order and
// semantically equal values (raw bytes compared after compaction, so
// whitespace introduced by pretty-printing does not matter).
func (r Record) Equal(other Record) bool {
	if len(r.keys) != len(other.keys) {
		return false
	}
	for i, key := range r.keys {
		if other.keys[i] != key {
			return false
		}
		if !rawEqual(r.fields[key], other.fields[key]) {
			return false
		}
	}
	return true
}

func rawEqual(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if err := json.Compact(&ca, a); err != nil {
		return bytes.Equal(a, b)
	}
	if err := json.Compact(&cb, b); err != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
