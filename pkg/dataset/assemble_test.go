package dataset

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
)

// makePages builds sequential pages of single-field records, pageSize
// records per full page.
func makePages(t *testing.T, total, pageSize int) []Page {
	t.Helper()

	var pages []Page
	for offset := 0; offset < total; offset += pageSize {
		count := pageSize
		if offset+count > total {
			count = total - offset
		}
		items := make([]Record, 0, count)
		for i := 0; i < count; i++ {
			var rec Record
			raw := fmt.Sprintf(`{"id":%d}`, offset+i+1)
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			items = append(items, rec)
		}
		pages = append(pages, Page{
			Offset:     offset,
			Items:      items,
			Count:      count,
			TotalCount: total,
		})
	}
	return pages
}

func recordIDs(d *Dataset) []string {
	ids := make([]string, 0, len(d.Records))
	for _, rec := range d.Records {
		raw, _ := rec.Get("id")
		ids = append(ids, string(raw))
	}
	return ids
}

func TestAssemble_OrderIndependentOfArrival(t *testing.T) {
	pages := makePages(t, 95, 10)
	want := recordIDs(Assemble(pages))

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		shuffled := make([]Page, len(pages))
		copy(shuffled, pages)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		got := recordIDs(Assemble(shuffled))
		if len(got) != len(want) {
			t.Fatalf("trial %d: got %d records, want %d", trial, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("trial %d: record %d = %s, want %s", trial, i, got[i], want[i])
			}
		}
	}
}

func TestAssemble_RecordsInOffsetOrder(t *testing.T) {
	pages := makePages(t, 25, 10)
	// Reverse arrival order.
	reversed := []Page{pages[2], pages[1], pages[0]}

	d := Assemble(reversed)
	if len(d.Records) != 25 {
		t.Fatalf("len(Records) = %d, want 25", len(d.Records))
	}
	ids := recordIDs(d)
	for i, id := range ids {
		if want := fmt.Sprintf("%d", i+1); id != want {
			t.Errorf("record %d id = %s, want %s", i, id, want)
		}
	}
	if d.DeclaredTotal != 25 {
		t.Errorf("DeclaredTotal = %d, want 25", d.DeclaredTotal)
	}
}

func TestAssemble_CountMismatch(t *testing.T) {
	tests := []struct {
		name          string
		records       int
		declaredTotal int
		want          bool
	}{
		{
			name:          "matching count",
			records:       30,
			declaredTotal: 30,
			want:          false,
		},
		{
			name:          "declared total drifted up",
			records:       298,
			declaredTotal: 300,
			want:          true,
		},
		{
			name:          "declared total drifted down",
			records:       30,
			declaredTotal: 28,
			want:          true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := makePages(t, tt.records, 10)
			for i := range pages {
				pages[i].TotalCount = tt.declaredTotal
			}

			d := Assemble(pages)
			if got := d.CountMismatch(); got != tt.want {
				t.Errorf("CountMismatch() = %v, want %v", got, tt.want)
			}
			if len(d.Records) != tt.records {
				t.Errorf("len(Records) = %d, want %d", len(d.Records), tt.records)
			}
		})
	}
}

func TestAssemble_Empty(t *testing.T) {
	d := Assemble(nil)
	if len(d.Records) != 0 {
		t.Errorf("len(Records) = %d, want 0", len(d.Records))
	}
	if d.CountMismatch() {
		t.Error("CountMismatch() = true for empty dataset with zero declared total")
	}
}
