package dataset

import (
	"sort"
)

// Dataset is the full ordered record collection of one run.
type Dataset struct {
	// Records in offset order, concatenated across pages.
	Records []Record

	// DeclaredTotal is the totalCount the source declared on the first page.
	DeclaredTotal int
}

// Assemble sorts the fetched pages by offset ascending and concatenates
// their items into one dataset. The result is independent of the order the
// pages arrived in: offsets are unique, so the sort is a total order.
//
// DeclaredTotal is taken from the page at offset 0. A length mismatch
// against it is reported via CountMismatch, never treated as fatal — the
// source's declared total may drift between requests under concurrent
// external writes.
func Assemble(pages []Page) *Dataset {
	sorted := make([]Page, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	d := &Dataset{}
	for _, page := range sorted {
		if page.Offset == 0 {
			d.DeclaredTotal = page.TotalCount
		}
		d.Records = append(d.Records, page.Items...)
	}
	return d
}

// CountMismatch reports whether the assembled length differs from the
// total the source declared on the first page.
func (d *Dataset) CountMismatch() bool {
	return len(d.Records) != d.DeclaredTotal
}
