package dataset

// Page is the result of one bounded page request. Immutable once created.
type Page struct {
	// Offset is the record offset this page was requested at.
	Offset int

	// Items are the records of this page, in source order.
	Items []Record

	// Count is the number of records the source declared for this page.
	Count int

	// TotalCount is the total record count the source declared at the time
	// of this request. Only the first page's value is authoritative for a
	// run; later pages may drift under concurrent writes at the source.
	TotalCount int
}
