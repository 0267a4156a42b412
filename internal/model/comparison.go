package model

// MatchBasis says which pass of the reconciliation produced a group.
type MatchBasis string

const (
	BasisIdentifier        MatchBasis = "identifier"
	BasisAbbreviationFuzzy MatchBasis = "abbreviation_fuzzy"
)

// UnmatchedReason explains why a record ended up outside every group.
type UnmatchedReason string

const (
	ReasonNoCandidate              UnmatchedReason = "no_candidate"
	ReasonBelowConfidenceThreshold UnmatchedReason = "below_confidence_threshold"
)

// Discrepancy is one field whose non-absent values disagree across the
// populated slots of a group.
type Discrepancy struct {
	Field  string                `json:"field"`
	Values map[SourceRole]string `json:"values"`
}

// MatchGroup clusters records from different sources judged to be the same
// physical part. A group always has two or three populated slots.
type MatchGroup struct {
	Slots         map[SourceRole]*PartRecord `json:"slots"`
	MatchBasis    MatchBasis                 `json:"match_basis"`
	Confidence    float64                    `json:"confidence"`
	Discrepancies []Discrepancy              `json:"discrepancies,omitempty"`
}

// PopulatedSlots counts the sources present in the group.
func (g MatchGroup) PopulatedSlots() int {
	n := 0
	for _, rec := range g.Slots {
		if rec != nil {
			n++
		}
	}
	return n
}

// UnmatchedRecord is a record that joined no group, with the reason.
type UnmatchedRecord struct {
	Record PartRecord      `json:"record"`
	Source SourceRole      `json:"source"`
	Reason UnmatchedReason `json:"reason"`
}

// ComparisonResult is the full reconciliation outcome. Every input record
// appears in exactly one group slot or exactly one unmatched entry.
type ComparisonResult struct {
	Groups    []MatchGroup      `json:"groups"`
	Unmatched []UnmatchedRecord `json:"unmatched"`
}

// RecordCount totals the records accounted for by the result.
func (r ComparisonResult) RecordCount() int {
	n := len(r.Unmatched)
	for _, g := range r.Groups {
		n += g.PopulatedSlots()
	}
	return n
}
