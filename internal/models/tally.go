package models

// Skip reasons recorded when a single record is dropped.
const (
	SkipNotObject       = "not_object"
	SkipMissingID       = "missing_id"
	SkipMissingPrice    = "missing_price"
	SkipBadNumber       = "bad_number"
	SkipEmptyBook       = "empty_book"
	SkipFiltered        = "filtered"
	SkipIncomplete      = "incomplete_outcomes"
	SkipUnmapped        = "unmapped_token"
	SkipMalformedLine   = "malformed_line"
	SkipMissingMatchKey = "missing_match_key"
	SkipDuplicate       = "duplicate"
)

// Tally counts records seen and records skipped by reason. Skipping is never
// fatal; the counts surface in the stage's completion summary.
type Tally struct {
	Processed int
	Skipped   map[string]int
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{Skipped: make(map[string]int)}
}

// Skip records one dropped record.
func (t *Tally) Skip(reason string) {
	t.Skipped[reason]++
}

// SkippedTotal sums all skip reasons.
func (t *Tally) SkippedTotal() int {
	n := 0
	for _, c := range t.Skipped {
		n += c
	}
	return n
}
