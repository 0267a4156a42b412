// Package store persists per-session extraction outputs and comparison
// results. It is the only shared mutable resource in the system; every
// other component is a pure function over its inputs.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bom-validator/internal/model"
)

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = eris.New("store: session not found")

// ErrConsistency marks a failed write. Writes are all-or-nothing per source
// key: a failed PutRecords leaves the prior record set intact.
var ErrConsistency = eris.New("store: write failed")

// Store is the session result store. Read-after-write consistency within a
// process is required: once PutRecords returns, GetResults reflects it.
// Overwriting a source's records replaces, never merges, the prior set.
type Store interface {
	// EnsureSession creates the session if missing and returns it.
	EnsureSession(ctx context.Context, sessionID string) (*model.Session, error)

	// SetStatus records one source's extraction state, with error detail
	// for failures.
	SetStatus(ctx context.Context, sessionID string, role model.SourceRole, status model.SourceStatus, errDetail string) error

	// PutRecords replaces the stored record set for one source key and
	// marks it succeeded. Atomic per key.
	PutRecords(ctx context.Context, sessionID string, role model.SourceRole, records []model.PartRecord) error

	// PutComparison stores the session's comparison result, replacing any
	// previous one.
	PutComparison(ctx context.Context, sessionID string, result *model.ComparisonResult) error

	// GetStatus returns the per-source status map.
	GetStatus(ctx context.Context, sessionID string) (map[model.SourceRole]model.SourceStatus, error)

	// GetRecords returns the stored record set for one source, nil when
	// that source has produced nothing yet.
	GetRecords(ctx context.Context, sessionID string, role model.SourceRole) ([]model.PartRecord, error)

	// GetResults returns everything persisted so far for a session.
	GetResults(ctx context.Context, sessionID string) (*model.SessionResults, error)

	// ListSessions summarizes all known sessions, newest first.
	ListSessions(ctx context.Context) ([]model.SessionSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// consistency wraps a write failure so callers can identify the error kind
// with eris.Is(err, ErrConsistency).
func consistency(err error, op string) error {
	if err == nil {
		return nil
	}
	return eris.Wrapf(ErrConsistency, "%s: %v", op, err)
}
