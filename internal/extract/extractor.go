// Package extract holds the per-document extractor collaborators. Each
// extractor turns raw input bytes of its document type into loosely-typed
// raw items; only the normalizer ever interprets those shapes.
package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bom-validator/internal/model"
	"github.com/sells-group/bom-validator/internal/normalize"
)

// ErrExtraction marks a failed or malformed extraction. The failure is
// isolated to one source; the session stays usable with fewer sources.
var ErrExtraction = eris.New("extract: extraction failed")

// Extractor converts one document type's raw bytes into raw items.
type Extractor interface {
	Role() model.SourceRole
	Extract(ctx context.Context, raw []byte) ([]normalize.RawItem, error)
}

// extractionErr wraps a cause so callers can identify the kind with
// eris.Is(err, ErrExtraction).
func extractionErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return eris.Wrapf(ErrExtraction, "%s: %v", op, err)
}
