package extract

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bom-validator/pkg/anthropic"
)

// fakeAnthropic returns a canned completion and records the request.
type fakeAnthropic struct {
	reply string
	err   error
	last  anthropic.MessageRequest
}

func (f *fakeAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{Text: f.reply}, nil
}

const csDrawingText = `PARTS LIST
1  STRAINER SS316        1
2  IMP WEAR RING SS316   2
`

func TestCSExtract(t *testing.T) {
	client := &fakeAnthropic{reply: "```json\n" + `[
		{"ref": "1", "description": "STRAINER SS316", "qty": 1, "material": "SS316"},
		{"ref": "2", "description": "IMP WEAR RING SS316", "qty": "2", "material": null}
	]` + "\n```"}

	e := NewCS(&fakeOCR{text: csDrawingText}, client, "claude-sonnet-4-5-20250929", 4096)
	items, err := e.Extract(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "1", items[0]["ref"])
	assert.Equal(t, "STRAINER SS316", items[0]["description"])
	assert.Equal(t, "1", items[0]["qty"])
	assert.Equal(t, "SS316", items[0]["material"])

	assert.Equal(t, "2", items[1]["qty"])
	_, hasMaterial := items[1]["material"]
	assert.False(t, hasMaterial, "null materials are dropped")

	assert.Equal(t, "claude-sonnet-4-5-20250929", client.last.Model)
	assert.Contains(t, client.last.Messages[0].Content, "STRAINER SS316",
		"the drawing text is forwarded to the model")
	require.NotNil(t, client.last.Temperature)
	assert.Zero(t, *client.last.Temperature)
}

func TestCSExtractPlainJSON(t *testing.T) {
	client := &fakeAnthropic{reply: `[{"ref": "1", "description": "IMPELLER CF8M"}]`}

	e := NewCS(&fakeOCR{text: csDrawingText}, client, "m", 0)
	items, err := e.Extract(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	_, hasQty := items[0]["qty"]
	assert.False(t, hasQty)
}

func TestCSExtractMalformedReply(t *testing.T) {
	client := &fakeAnthropic{reply: "Sorry, I could not find a parts list."}

	e := NewCS(&fakeOCR{text: csDrawingText}, client, "m", 0)
	_, err := e.Extract(context.Background(), []byte("%PDF"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrExtraction))
}

func TestCSExtractEmptyDrawing(t *testing.T) {
	e := NewCS(&fakeOCR{text: "   \n"}, &fakeAnthropic{}, "m", 0)
	_, err := e.Extract(context.Background(), []byte("%PDF"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrExtraction))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `[1]`, stripCodeFence("```json\n[1]\n```"))
	assert.Equal(t, `[1]`, stripCodeFence("```\n[1]\n```"))
	assert.Equal(t, `[1]`, stripCodeFence("[1]"))
	assert.Equal(t, `[1]`, stripCodeFence("  [1]  "))
}
