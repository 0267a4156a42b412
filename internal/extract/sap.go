package extract

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/bom-validator/internal/model"
	"github.com/sells-group/bom-validator/internal/normalize"
	"github.com/sells-group/bom-validator/internal/ocr"
)

// Datasheet lines come in two shapes: "Key * Value" and a key separated from
// its value by a run of whitespace.
var (
	kvStarLine  = regexp.MustCompile(`^(.+?)\s*\*\s*(.+)$`)
	kvAlignLine = regexp.MustCompile(`^(\S.*?\S)\s{2,}(\S.*)$`)
)

// sapMaterialPatterns match material-of-construction codes in datasheet
// values.
var sapMaterialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(SS\s?\d{3}\w?)`),
	regexp.MustCompile(`(CF\s?\d+M?\b)`),
	regexp.MustCompile(`(CA\s?\d+\w*)`),
	regexp.MustCompile(`(GGG\s?\d+)`),
	regexp.MustCompile(`(EN[- ]?GJS[\w.-]*)`),
	regexp.MustCompile(`\b(CI)\b`),
	regexp.MustCompile(`\b(MS)\b`),
}

// SAPExtractor pulls part entries from datasheet PDFs. The PDF is converted
// to layout-preserving text; key/value lines whose key names a known part
// become part records, the rest is order metadata.
type SAPExtractor struct {
	ocr  ocr.Extractor
	dict *normalize.Dictionary
}

// NewSAP creates the datasheet extractor.
func NewSAP(textExtractor ocr.Extractor, dict *normalize.Dictionary) *SAPExtractor {
	return &SAPExtractor{ocr: textExtractor, dict: dict}
}

func (e *SAPExtractor) Role() model.SourceRole { return model.SourceSAP }

// Extract converts the PDF to text and parses every key/value line. Lines
// whose key matches a known part label become items; other key/value pairs
// are attached to each item as order metadata.
func (e *SAPExtractor) Extract(ctx context.Context, raw []byte) ([]normalize.RawItem, error) {
	text, err := e.ocr.ExtractText(ctx, raw)
	if err != nil {
		return nil, extractionErr(err, "sap: pdf to text")
	}

	var (
		items    []normalize.RawItem
		metadata = map[string]string{}
	)
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := parseKVLine(line)
		if !ok {
			continue
		}
		if canonical, matched := e.partKey(key); matched {
			item := normalize.RawItem{
				"part":        canonical,
				"description": value,
			}
			if m := sapMaterial(value); m != "" {
				item["material"] = m
			}
			if strings.Contains(strings.ToUpper(value), "COAT") {
				item["coating"] = true
			}
			items = append(items, item)
		} else {
			metadata[key] = value
		}
	}

	// Order metadata rides along on every item so it survives
	// normalization as raw fields.
	for _, item := range items {
		for k, v := range metadata {
			mk := "meta_" + strings.ToLower(strings.Join(strings.Fields(k), "_"))
			if _, exists := item[mk]; !exists {
				item[mk] = v
			}
		}
	}

	zap.L().Info("sap: extracted part entries",
		zap.Int("count", len(items)),
		zap.Int("metadata_keys", len(metadata)))
	return items, nil
}

// parseKVLine splits a datasheet line into key and value. The star form is
// preferred; aligned columns are the fallback.
func parseKVLine(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", "", false
	}
	if m := kvStarLine.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
	}
	if m := kvAlignLine.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
	}
	return "", "", false
}

// partKey reports whether a datasheet key labels a known part, returning its
// canonical name.
func (e *SAPExtractor) partKey(key string) (canonical string, ok bool) {
	norm := strings.ToUpper(strings.Join(strings.Fields(key), " "))
	for label, canon := range e.dict.PartKeys {
		if strings.ToUpper(strings.Join(strings.Fields(label), " ")) == norm {
			return canon, true
		}
	}
	return "", false
}

func sapMaterial(value string) string {
	upper := strings.ToUpper(value)
	for _, pat := range sapMaterialPatterns {
		if m := pat.FindStringSubmatch(upper); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
