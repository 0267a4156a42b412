package extract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bom-validator/internal/model"
	"github.com/sells-group/bom-validator/internal/normalize"
	"github.com/sells-group/bom-validator/internal/ocr"
	"github.com/sells-group/bom-validator/pkg/anthropic"
)

const csSystemPrompt = `You are a mechanical engineering assistant that reads ` +
	`cross-sectional pump drawings. You extract the parts list exactly as ` +
	`printed and never invent entries.`

const csUserPrompt = `Below is the text extracted from a cross-sectional pump drawing.
Find the parts list / bill of materials table and return every part as a JSON array.

Each element must be an object with these keys:
- "ref": the item or reference number as printed (string)
- "description": the part description as printed (string)
- "qty": the quantity if shown, otherwise null
- "material": the material of construction if shown, otherwise null

Return ONLY the JSON array, no prose and no markdown.

Drawing text:
`

// csItem mirrors one element of the model's JSON array reply.
type csItem struct {
	Ref         string          `json:"ref"`
	Description string          `json:"description"`
	Qty         json.RawMessage `json:"qty"`
	Material    string          `json:"material"`
}

// CSExtractor reads cross-sectional drawing PDFs. The drawing is converted to
// text and the parts table is recovered by the model, which returns a JSON
// array of entries.
type CSExtractor struct {
	ocr       ocr.Extractor
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewCS creates the drawing extractor.
func NewCS(textExtractor ocr.Extractor, client anthropic.Client, modelName string, maxTokens int64) *CSExtractor {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &CSExtractor{ocr: textExtractor, client: client, model: modelName, maxTokens: maxTokens}
}

func (e *CSExtractor) Role() model.SourceRole { return model.SourceCS }

// Extract converts the PDF to text, asks the model for the parts table, and
// parses the JSON array reply.
func (e *CSExtractor) Extract(ctx context.Context, raw []byte) ([]normalize.RawItem, error) {
	text, err := e.ocr.ExtractText(ctx, raw)
	if err != nil {
		return nil, extractionErr(err, "cs: pdf to text")
	}
	if strings.TrimSpace(text) == "" {
		return nil, extractionErr(eris.New("drawing produced no text"), "cs: pdf to text")
	}

	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      csSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: csUserPrompt + text}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, extractionErr(err, "cs: create message")
	}

	items, err := parseCSReply(resp.Text)
	if err != nil {
		return nil, extractionErr(err, "cs: parse reply")
	}

	zap.L().Info("cs: extracted drawing entries",
		zap.Int("count", len(items)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))
	return items, nil
}

// parseCSReply decodes the model's JSON array, tolerating a markdown code
// fence around it.
func parseCSReply(reply string) ([]normalize.RawItem, error) {
	body := stripCodeFence(reply)

	var parsed []csItem
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, eris.Wrap(err, "decode json array")
	}

	items := make([]normalize.RawItem, 0, len(parsed))
	for _, p := range parsed {
		item := normalize.RawItem{
			"ref":         p.Ref,
			"description": p.Description,
		}
		if qty := strings.Trim(string(p.Qty), `"`); qty != "" && qty != "null" {
			item["qty"] = qty
		}
		if p.Material != "" {
			item["material"] = p.Material
		}
		items = append(items, item)
	}
	return items, nil
}

// stripCodeFence removes a surrounding ```json ... ``` fence when present.
func stripCodeFence(s string) string {
	body := strings.TrimSpace(s)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	if idx := strings.Index(body, "\n"); idx >= 0 {
		body = body[idx+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
