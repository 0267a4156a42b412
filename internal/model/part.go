package model

// SourceRole identifies which of the three documents a record came from.
type SourceRole string

const (
	SourceCS  SourceRole = "CS"  // cross-section drawing
	SourceBOM SourceRole = "BOM" // spreadsheet export
	SourceSAP SourceRole = "SAP" // key-value datasheet
)

// AllSources lists the source roles in matching priority order.
// CS > BOM > SAP is a deterministic tie-break, nothing more.
var AllSources = []SourceRole{SourceCS, SourceBOM, SourceSAP}

// Valid reports whether the role is one of the three known documents.
func (r SourceRole) Valid() bool {
	return r == SourceCS || r == SourceBOM || r == SourceSAP
}

// Identifier is the optional structured key of a part record. Sources
// disagree on which number they carry, so both are kept.
type Identifier struct {
	ItemNumber      string `json:"item_number,omitempty"`
	ComponentNumber string `json:"component_number,omitempty"`
}

// Empty reports whether the identifier carries no usable key.
func (id Identifier) Empty() bool {
	return id.ItemNumber == "" && id.ComponentNumber == ""
}

// PartRecord is the canonical schema every extractor output is normalized
// into. Description is never empty for an accepted record.
type PartRecord struct {
	Source             SourceRole        `json:"source"`
	Identifier         Identifier        `json:"identifier,omitempty"`
	Description        string            `json:"description"`
	AbbreviationTokens []Token           `json:"abbreviation_tokens,omitempty"`
	Quantity           *float64          `json:"quantity,omitempty"`
	Material           string            `json:"material,omitempty"`
	Coating            *bool             `json:"coating,omitempty"`
	RawFields          map[string]string `json:"raw_fields,omitempty"` // display/export only, never matched on
}

// Token is one normalized short token derived from a description.
// Recognized tokens come from the abbreviation dictionary and carry more
// weight during matching than generic words.
type Token struct {
	Text       string `json:"text"`
	Recognized bool   `json:"recognized"`
}

// Warning records a raw item dropped or degraded during normalization.
// Warnings are collected and reported, never raised.
type Warning struct {
	Source SourceRole `json:"source"`
	Index  int        `json:"index"` // position in the raw extractor output
	Reason string     `json:"reason"`
}
