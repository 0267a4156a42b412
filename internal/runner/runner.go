// Package runner orchestrates per-session extraction and comparison. Each
// provided document runs as its own task; one document failing never stops
// the others.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bom-validator/internal/extract"
	"github.com/sells-group/bom-validator/internal/matcher"
	"github.com/sells-group/bom-validator/internal/model"
	"github.com/sells-group/bom-validator/internal/normalize"
	"github.com/sells-group/bom-validator/internal/store"
)

// DefaultTaskTimeout bounds a single document extraction.
const DefaultTaskTimeout = 5 * time.Minute

// Runner ties extractors, the normalizer, the matcher, and the store into
// session-scoped operations.
type Runner struct {
	store      store.Store
	norm       *normalize.Normalizer
	extractors map[model.SourceRole]extract.Extractor
	matchCfg   matcher.Config
	timeout    time.Duration
}

// New builds a Runner. A zero timeout falls back to DefaultTaskTimeout.
func New(st store.Store, norm *normalize.Normalizer, extractors []extract.Extractor, matchCfg matcher.Config, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	byRole := make(map[model.SourceRole]extract.Extractor, len(extractors))
	for _, ex := range extractors {
		byRole[ex.Role()] = ex
	}
	return &Runner{
		store:      st,
		norm:       norm,
		extractors: byRole,
		matchCfg:   matchCfg,
		timeout:    timeout,
	}
}

// RunSession extracts every provided document concurrently and persists the
// outcome per source. Sources not present in inputs are left untouched.
// The returned status always covers exactly the provided roles; the error is
// non-nil only for session-level failures, never for individual document
// failures.
func (r *Runner) RunSession(ctx context.Context, sessionID string, inputs map[model.SourceRole][]byte) (model.SessionStatus, error) {
	status := model.SessionStatus{
		SessionID: sessionID,
		Sources:   map[model.SourceRole]model.SourceStatus{},
		Errors:    map[model.SourceRole]string{},
	}

	if len(inputs) == 0 {
		return status, eris.New("runner: no documents provided")
	}
	if _, err := r.store.EnsureSession(ctx, sessionID); err != nil {
		return status, eris.Wrapf(err, "runner: ensure session %s", sessionID)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, role := range model.AllSources {
		raw, ok := inputs[role]
		if !ok {
			continue
		}
		g.Go(func() error {
			st, warnings, errDetail := r.runOne(gctx, sessionID, role, raw)
			mu.Lock()
			status.Sources[role] = st
			if errDetail != "" {
				status.Errors[role] = errDetail
			}
			status.Warnings = append(status.Warnings, warnings...)
			mu.Unlock()
			return nil
		})
	}
	// Task errors are captured per source; the group never carries one.
	_ = g.Wait()

	if len(status.Errors) == 0 {
		status.Errors = nil
	}
	return status, nil
}

// runOne extracts, normalizes, and persists a single document. It returns
// the terminal status, any normalization warnings, and the failure detail.
func (r *Runner) runOne(ctx context.Context, sessionID string, role model.SourceRole, raw []byte) (model.SourceStatus, []model.Warning, string) {
	log := zap.L().With(
		zap.String("session_id", sessionID),
		zap.String("source", string(role)))

	ex, ok := r.extractors[role]
	if !ok {
		detail := "no extractor configured for source"
		if err := r.store.SetStatus(ctx, sessionID, role, model.StatusFailed, detail); err != nil {
			log.Error("mark failed", zap.Error(err))
		}
		return model.StatusFailed, nil, detail
	}

	if err := r.store.SetStatus(ctx, sessionID, role, model.StatusRunning, ""); err != nil {
		return model.StatusFailed, nil, eris.ToString(err, false)
	}

	taskCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	items, err := ex.Extract(taskCtx, raw)
	if err != nil {
		detail := eris.ToString(err, false)
		log.Warn("extraction failed", zap.Error(err))
		if serr := r.store.SetStatus(ctx, sessionID, role, model.StatusFailed, detail); serr != nil {
			log.Error("mark failed", zap.Error(serr))
		}
		return model.StatusFailed, nil, detail
	}

	records, warnings := r.norm.Normalize(role, items)
	if err := r.store.PutRecords(ctx, sessionID, role, records); err != nil {
		detail := eris.ToString(err, false)
		log.Error("persist records", zap.Error(err))
		if serr := r.store.SetStatus(ctx, sessionID, role, model.StatusFailed, detail); serr != nil {
			log.Error("mark failed", zap.Error(serr))
		}
		return model.StatusFailed, warnings, detail
	}

	log.Info("source extracted",
		zap.Int("records", len(records)),
		zap.Int("warnings", len(warnings)),
		zap.Duration("took", time.Since(started)))
	return model.StatusSucceeded, warnings, ""
}

// Compare loads every succeeded source's records, runs the matcher, and
// persists the result. At least two sources must have succeeded.
func (r *Runner) Compare(ctx context.Context, sessionID string) (*model.ComparisonResult, error) {
	statuses, err := r.store.GetStatus(ctx, sessionID)
	if err != nil {
		return nil, eris.Wrapf(err, "runner: load statuses %s", sessionID)
	}

	recordsBySource := map[model.SourceRole][]model.PartRecord{}
	for _, role := range model.AllSources {
		if statuses[role] != model.StatusSucceeded {
			continue
		}
		records, err := r.store.GetRecords(ctx, sessionID, role)
		if err != nil {
			return nil, eris.Wrapf(err, "runner: load %s records", role)
		}
		recordsBySource[role] = records
	}

	result, err := matcher.Compare(recordsBySource, r.matchCfg)
	if err != nil {
		return nil, err
	}
	if err := r.store.PutComparison(ctx, sessionID, result); err != nil {
		return nil, eris.Wrapf(err, "runner: persist comparison %s", sessionID)
	}

	zap.L().Info("comparison stored",
		zap.String("session_id", sessionID),
		zap.Int("matched_groups", len(result.Groups)),
		zap.Int("unmatched", len(result.Unmatched)))
	return result, nil
}

// Results returns everything persisted for a session.
func (r *Runner) Results(ctx context.Context, sessionID string) (*model.SessionResults, error) {
	return r.store.GetResults(ctx, sessionID)
}
