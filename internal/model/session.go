package model

import "time"

// SourceStatus is the extraction state of one source role within a session.
type SourceStatus string

const (
	StatusNotStarted SourceStatus = "not_started"
	StatusRunning    SourceStatus = "running"
	StatusSucceeded  SourceStatus = "succeeded"
	StatusFailed     SourceStatus = "failed"
)

// Session is one reconciliation attempt over up to three documents.
type Session struct {
	ID        string                      `json:"id"`
	Statuses  map[SourceRole]SourceStatus `json:"statuses"`
	CreatedAt time.Time                   `json:"created_at"`
}

// NewSession returns a Session with every source not started.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID: id,
		Statuses: map[SourceRole]SourceStatus{
			SourceCS:  StatusNotStarted,
			SourceBOM: StatusNotStarted,
			SourceSAP: StatusNotStarted,
		},
		CreatedAt: now,
	}
}

// SessionStatus is the per-source outcome of one RunSession call.
type SessionStatus struct {
	SessionID string                      `json:"session_id"`
	Sources   map[SourceRole]SourceStatus `json:"sources"`
	Errors    map[SourceRole]string       `json:"errors,omitempty"`
	Warnings  []Warning                   `json:"warnings,omitempty"`
}

// Succeeded lists the roles that completed extraction in this call.
func (s SessionStatus) Succeeded() []SourceRole {
	var roles []SourceRole
	for _, role := range AllSources {
		if s.Sources[role] == StatusSucceeded {
			roles = append(roles, role)
		}
	}
	return roles
}

// SessionResults is everything persisted for a session so far.
type SessionResults struct {
	SessionID  string                      `json:"session_id"`
	Statuses   map[SourceRole]SourceStatus `json:"statuses"`
	Records    map[SourceRole][]PartRecord `json:"records"`
	Comparison *ComparisonResult           `json:"comparison,omitempty"`
	CreatedAt  time.Time                   `json:"created_at"`
}

// SessionSummary is a listing entry: which sources are in and whether a
// comparison has been produced.
type SessionSummary struct {
	SessionID   string                      `json:"session_id"`
	Statuses    map[SourceRole]SourceStatus `json:"statuses"`
	RecordCount map[SourceRole]int          `json:"record_count"`
	Compared    bool                        `json:"compared"`
	CreatedAt   time.Time                   `json:"created_at"`
}
