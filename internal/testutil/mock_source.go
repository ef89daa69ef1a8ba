// Package testutil provides testing utilities for dataset-sync.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockSource is a configurable in-memory records API for testing. It
// serves the paginated listing endpoint, validates the credential, and
// tracks request behavior the pipeline tests assert on: per-offset request
// counts and the high-water mark of concurrent in-flight requests.
type MockSource struct {
	server *httptest.Server

	// APIToken is the credential the server accepts.
	APIToken string

	mu            sync.Mutex
	records       []json.RawMessage
	declaredTotal int // 0 means len(records)
	failStatus    map[int]int
	malformed     map[int]bool
	delay         time.Duration

	requestCount int
	offsetCounts map[int]int
	inFlight     int
	maxInFlight  int
}

// NewMockSource creates a mock records API accepting the given token.
func NewMockSource(token string) *MockSource {
	m := &MockSource{
		APIToken:     token,
		failStatus:   make(map[int]int),
		malformed:    make(map[int]bool),
		offsetCounts: make(map[int]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockSource) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSource) Close() {
	m.server.Close()
}

// SetRecords replaces the dataset with the given JSON object literals.
// Raw bytes are served verbatim, so field order is whatever the literal says.
func (m *MockSource) SetRecords(raws []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = m.records[:0]
	for _, raw := range raws {
		m.records = append(m.records, json.RawMessage(raw))
	}
}

// SetRecordCount generates n simple records {"id": i, "name": "record-i"}.
func (m *MockSource) SetRecordCount(n int) {
	raws := make([]string, 0, n)
	for i := 0; i < n; i++ {
		raws = append(raws, fmt.Sprintf(`{"id":%d,"name":"record-%d"}`, i+1, i+1))
	}
	m.SetRecords(raws)
}

// SetDeclaredTotal overrides the totalCount reported on every response,
// simulating a source whose declared total drifts from what it serves.
func (m *MockSource) SetDeclaredTotal(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.declaredTotal = n
}

// FailAt makes requests for the given offset answer with the status.
func (m *MockSource) FailAt(offset, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStatus[offset] = status
}

// MalformAt makes requests for the given offset answer with a body that is
// not valid JSON.
func (m *MockSource) MalformAt(offset int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.malformed[offset] = true
}

// SetDelay adds a fixed delay per request, widening the window the
// concurrency tests observe.
func (m *MockSource) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// RequestCount returns the number of page requests served.
func (m *MockSource) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// OffsetCounts returns a copy of the per-offset request counts.
func (m *MockSource) OffsetCounts() map[int]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[int]int, len(m.offsetCounts))
	for k, v := range m.offsetCounts {
		counts[k] = v
	}
	return counts
}

// MaxInFlight returns the highest number of simultaneous in-flight
// requests observed.
func (m *MockSource) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// Reset clears tracking counters but keeps the dataset.
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.offsetCounts = make(map[int]int)
	m.maxInFlight = 0
}

func (m *MockSource) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requestCount++
	m.offsetCounts[offset]++
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.delay
	status := m.failStatus[offset]
	malformed := m.malformed[offset]
	total := m.declaredTotal
	if total == 0 {
		total = len(m.records)
	}
	page := slicePage(m.records, offset, limit)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if q.Get("api_key") != m.APIToken {
		http.Error(w, "missing or invalid api key", http.StatusUnauthorized)
		return
	}
	if q.Get("sort") == "" {
		http.Error(w, "missing sort order", http.StatusBadRequest)
		return
	}
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if malformed {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items": [not json`)
		return
	}

	// Build the body by hand so record field order survives.
	var buf bytes.Buffer
	buf.WriteString(`{"items":[`)
	for i, rec := range page {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(rec)
	}
	fmt.Fprintf(&buf, `],"count":%d,"totalCount":%d}`, len(page), total)

	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

func slicePage(records []json.RawMessage, offset, limit int) []json.RawMessage {
	if offset >= len(records) {
		return nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}
