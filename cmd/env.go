package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bom-validator/internal/extract"
	"github.com/sells-group/bom-validator/internal/matcher"
	"github.com/sells-group/bom-validator/internal/normalize"
	"github.com/sells-group/bom-validator/internal/ocr"
	"github.com/sells-group/bom-validator/internal/runner"
	"github.com/sells-group/bom-validator/internal/store"
	anthropicpkg "github.com/sells-group/bom-validator/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "bomcheck.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initDictionary() (*normalize.Dictionary, error) {
	if cfg.Dictionary.Path == "" {
		return normalize.DefaultDictionary(), nil
	}
	dict, err := normalize.LoadDictionary(cfg.Dictionary.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load dictionary")
	}
	zap.L().Info("dictionary loaded", zap.String("path", cfg.Dictionary.Path))
	return dict, nil
}

// initRunner wires the extractors, normalizer, matcher, and store together.
func initRunner(st store.Store) (*runner.Runner, error) {
	dict, err := initDictionary()
	if err != nil {
		return nil, err
	}

	textExtractor, err := ocr.NewExtractor(cfg.Extract.OCR.Provider, cfg.Extract.OCR.PdfToTextPath)
	if err != nil {
		return nil, eris.Wrap(err, "init ocr")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key, cfg.Anthropic.RPS)

	extractors := []extract.Extractor{
		extract.NewBOM(dict),
		extract.NewSAP(textExtractor, dict),
		extract.NewCS(textExtractor, anthropicClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens),
	}

	matchCfg := matcher.Config{
		MinConfidence:         cfg.Matcher.MinConfidence,
		RecognizedTokenWeight: cfg.Matcher.RecognizedTokenWeight,
		TokenBlend:            cfg.Matcher.TokenBlend,
	}

	timeout := time.Duration(cfg.Extract.TimeoutSecs) * time.Second
	return runner.New(st, normalize.New(dict), extractors, matchCfg, timeout), nil
}
