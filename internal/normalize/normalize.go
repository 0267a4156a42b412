// Package normalize translates loosely-typed extractor output into the
// canonical part-record schema. It is the only component that ever sees a
// raw extractor shape.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/bom-validator/internal/model"
)

// RawItem is one loosely-typed record as returned by an extractor.
type RawItem map[string]any

// Normalizer maps raw extractor items into canonical PartRecords.
type Normalizer struct {
	dict *Dictionary
}

// New creates a Normalizer over the given dictionary.
func New(dict *Dictionary) *Normalizer {
	return &Normalizer{dict: dict}
}

// descriptionKeys lists, per source role, the raw fields tried in order when
// looking for a description.
var descriptionKeys = map[model.SourceRole][]string{
	model.SourceCS:  {"description", "desc"},
	model.SourceBOM: {"description", "object_description"},
	model.SourceSAP: {"part", "description"},
}

// identifierKeys lists the raw fields holding item and component numbers.
var identifierKeys = map[model.SourceRole]struct{ item, component string }{
	model.SourceCS:  {item: "ref"},
	model.SourceBOM: {item: "item_number", component: "component_number"},
	model.SourceSAP: {},
}

var quantityKeys = []string{"quantity", "qty"}

// canonicalKeys are raw fields consumed into the canonical schema; anything
// else lands in RawFields.
var canonicalKeys = map[string]bool{
	"description": true, "desc": true, "object_description": true,
	"part": true, "ref": true, "item_number": true, "component_number": true,
	"quantity": true, "qty": true, "material": true, "coating": true,
}

// Normalize converts an extractor's raw items for one source role into
// canonical records. Items without a usable description are dropped with a
// warning. The function is pure aside from logging.
func (n *Normalizer) Normalize(role model.SourceRole, rawItems []RawItem) ([]model.PartRecord, []model.Warning) {
	log := zap.L().With(zap.String("source", string(role)))

	records := make([]model.PartRecord, 0, len(rawItems))
	var warnings []model.Warning

	for i, item := range rawItems {
		desc := firstString(item, descriptionKeys[role]...)
		if desc == "" {
			warnings = append(warnings, model.Warning{
				Source: role,
				Index:  i,
				Reason: "missing description",
			})
			continue
		}

		rec := model.PartRecord{
			Source:             role,
			Description:        desc,
			AbbreviationTokens: n.Tokenize(desc),
			Material:           firstString(item, "material"),
			RawFields:          residualFields(item),
		}

		keys := identifierKeys[role]
		if keys.item != "" {
			rec.Identifier.ItemNumber = identString(item[keys.item])
		}
		if keys.component != "" {
			rec.Identifier.ComponentNumber = identString(item[keys.component])
		}

		if qty, ok := parseQuantity(item, quantityKeys...); ok {
			rec.Quantity = &qty
		}

		if coat, ok := parseCoating(item, desc); ok {
			rec.Coating = &coat
		}

		records = append(records, rec)
	}

	if len(warnings) > 0 {
		log.Warn("normalize: dropped raw items",
			zap.Int("dropped", len(warnings)),
			zap.Int("kept", len(records)),
		)
	}

	return records, warnings
}

// Tokenize derives ordered abbreviation tokens from a description. Tokens
// found in the dictionary are flagged recognized; the rest are kept as
// lower-weight candidates.
func (n *Normalizer) Tokenize(description string) []model.Token {
	words := splitWords(description)
	tokens := make([]model.Token, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, model.Token{
			Text:       w,
			Recognized: n.dict.Recognized(w),
		})
	}
	return tokens
}

// Dictionary exposes the normalizer's dictionary for canonical detection.
func (n *Normalizer) Dictionary() *Dictionary {
	return n.dict
}

// firstString returns the first non-empty string value among the keys.
func firstString(item RawItem, keys ...string) string {
	for _, k := range keys {
		if v, ok := item[k]; ok {
			if s := strings.TrimSpace(stringify(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// identString normalizes an identifier value; numeric values lose any
// float artifacts ("10.0" -> "10").
func identString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return strings.TrimSpace(stringify(v))
	}
}

var leadingNumber = regexp.MustCompile(`^[-+]?\d+(?:[.,]\d+)?`)

// parseQuantity pulls a numeric quantity out of the raw item, tolerating
// unit suffixes and thousands separators. Un-parseable values ("AS REQD")
// fail soft to absent.
func parseQuantity(item RawItem, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := item[k]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			return val, true
		case int:
			return float64(val), true
		case string:
			s := strings.TrimSpace(val)
			m := leadingNumber.FindString(s)
			if m == "" {
				continue
			}
			f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
			if err != nil {
				continue
			}
			return f, true
		}
	}
	return 0, false
}

// parseCoating reads an explicit coating flag, falling back to coating
// markers in the description text. Absent when neither is present.
func parseCoating(item RawItem, desc string) (bool, bool) {
	if v, ok := item["coating"]; ok {
		switch val := v.(type) {
		case bool:
			return val, true
		case string:
			s := strings.ToUpper(strings.TrimSpace(val))
			if s != "" {
				return s == "TRUE" || s == "YES" || strings.Contains(s, "COAT"), true
			}
		}
	}
	upper := strings.ToUpper(desc)
	if strings.Contains(upper, "+COAT") || strings.Contains(upper, "COATING") {
		return true, true
	}
	return false, false
}

// residualFields retains source-specific attributes outside the canonical
// set, stringified for display and export.
func residualFields(item RawItem) map[string]string {
	var raw map[string]string
	for k, v := range item {
		if canonicalKeys[k] || v == nil {
			continue
		}
		s := strings.TrimSpace(stringify(v))
		if s == "" {
			continue
		}
		if raw == nil {
			raw = make(map[string]string)
		}
		raw[k] = s
	}
	return raw
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
