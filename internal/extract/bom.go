package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/bom-validator/internal/model"
	"github.com/sells-group/bom-validator/internal/normalize"
)

// Fixed column layout (0-indexed) of the spreadsheet export.
const (
	colItemNumber   = 0 // A: item number
	colComponentNum = 1 // B: component number
	colDescription  = 2 // C: object description
	colQuantity     = 3 // D: component qty
	colUnit         = 4 // E: base unit of measure
	colText1        = 5 // F: item text line 1
	colText2        = 6 // G: item text line 2
	colSortString   = 7 // H: sort string
)

// sortCategories maps sort-string values to assembly categories.
var sortCategories = map[string]string{
	"PL BOWL":    "Bowl Assembly",
	"PL SHAFT":   "Shaft Assembly",
	"PL RM PIPE": "Rising Main Pipe",
	"PL ACC":     "Accessories",
	"PL DB/MS":   "Delivery Bend / Motor Stool",
}

// materialPatterns match material codes commonly found at the tail of
// description strings.
var materialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(SS\d{3}\w?)`),
	regexp.MustCompile(`(CF\d+M?\b)`),
	regexp.MustCompile(`(CA\d+\w*)`),
	regexp.MustCompile(`(GGG\d+)`),
	regexp.MustCompile(`(FG\s?\d+)`),
	regexp.MustCompile(`(WCB)`),
	regexp.MustCompile(`(LTB\d+)`),
	regexp.MustCompile(`(CIP\s+MARINE)`),
	regexp.MustCompile(`(CUTL?\s*RUB(?:BER)?)`),
	regexp.MustCompile(`(NITRILE)`),
	regexp.MustCompile(`(HTS)`),
	regexp.MustCompile(`\b(MS)\b`),
}

// BOMExtractor parses spreadsheet exports into raw line items.
type BOMExtractor struct {
	dict *normalize.Dictionary
}

// NewBOM creates the spreadsheet extractor.
func NewBOM(dict *normalize.Dictionary) *BOMExtractor {
	return &BOMExtractor{dict: dict}
}

func (e *BOMExtractor) Role() model.SourceRole { return model.SourceBOM }

// Extract reads the first sheet, skips the header row and empty rows, and
// parses each remaining row into a raw item.
func (e *BOMExtractor) Extract(ctx context.Context, raw []byte) ([]normalize.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, extractionErr(err, "bom: context")
	}

	f, err := xlsx.OpenBinary(raw)
	if err != nil {
		return nil, extractionErr(err, "bom: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, extractionErr(eris.New("workbook has no sheets"), "bom: select sheet")
	}

	sheet := f.Sheets[0]
	items := make([]normalize.RawItem, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		if i == 0 {
			continue // header
		}
		cells := rowToStrings(row)
		if allEmpty(cells) {
			continue
		}
		items = append(items, e.parseRow(cells))
	}

	zap.L().Info("bom: extracted line items", zap.Int("count", len(items)))
	return items, nil
}

// parseRow turns one spreadsheet row into a raw item.
func (e *BOMExtractor) parseRow(cells []string) normalize.RawItem {
	description := cell(cells, colDescription)
	sortStr := cell(cells, colSortString)

	item := normalize.RawItem{
		"item_number":      cell(cells, colItemNumber),
		"component_number": cell(cells, colComponentNum),
		"description":      description,
		"quantity":         cell(cells, colQuantity),
		"unit":             cell(cells, colUnit),
	}

	if m := extractMaterial(description); m != "" {
		item["material"] = m
	}
	if strings.Contains(strings.ToUpper(description), "+COAT") {
		item["coating"] = true
	}
	if partType, _ := e.dict.DetectCanonical(description); partType != "" {
		item["part_type"] = partType
	}
	if category, ok := sortCategories[sortStr]; ok {
		item["category"] = category
	} else if sortStr != "" {
		item["category"] = sortStr
	}

	// Item text lines combine into a single usage note.
	var usage []string
	for _, c := range []string{cell(cells, colText1), cell(cells, colText2)} {
		if c != "" {
			usage = append(usage, c)
		}
	}
	if len(usage) > 0 {
		item["usage"] = strings.Join(usage, "; ")
	}

	return item
}

// extractMaterial pulls a material code from the description tail, carrying
// coating info along when present.
func extractMaterial(description string) string {
	upper := strings.ToUpper(description)
	for _, pat := range materialPatterns {
		if m := pat.FindStringSubmatch(upper); m != nil {
			result := strings.TrimSpace(m[1])
			if strings.Contains(upper, "+COAT") && !strings.Contains(result, "COAT") {
				result += " + COATING"
			}
			return result
		}
	}
	return ""
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, c := range row.Cells {
		cells[j] = c.String()
	}
	return cells
}

func cell(cells []string, idx int) string {
	if idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func allEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
