// Package ocr extracts text content from PDF documents.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"
)

// Extractor extracts text content from raw PDF bytes.
type Extractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// NewExtractor creates an Extractor for the configured provider.
func NewExtractor(provider, pdfToTextPath string) (Extractor, error) {
	switch provider {
	case "local", "":
		return NewPdfToText(pdfToTextPath), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", provider)
	}
}
