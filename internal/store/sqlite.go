package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bom-validator/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Record sets are
// stored as JSON per (session, source) key, so the per-key write is a single
// atomic upsert.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS source_sets (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'not_started',
	error      TEXT,
	records    TEXT,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (session_id, source)
);

CREATE TABLE IF NOT EXISTS comparisons (
	session_id TEXT PRIMARY KEY REFERENCES sessions(id),
	result     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_source_sets_session ON source_sets(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) EnsureSession(ctx context.Context, sessionID string) (*model.Session, error) {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, created_at) VALUES (?, ?)`,
		sessionID, now,
	); err != nil {
		return nil, consistency(err, "sqlite: ensure session")
	}

	var createdAt time.Time
	if err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM sessions WHERE id = ?`, sessionID,
	).Scan(&createdAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: read session")
	}

	sess := model.NewSession(sessionID, createdAt)
	statuses, err := s.GetStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for role, st := range statuses {
		sess.Statuses[role] = st
	}
	return sess, nil
}

func (s *SQLiteStore) SetStatus(ctx context.Context, sessionID string, role model.SourceRole, status model.SourceStatus, errDetail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_sets (session_id, source, status, error, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, source)
		DO UPDATE SET status = excluded.status, error = excluded.error, updated_at = excluded.updated_at`,
		sessionID, string(role), string(status), nullable(errDetail), time.Now().UTC(),
	)
	return consistency(err, "sqlite: set status")
}

func (s *SQLiteStore) PutRecords(ctx context.Context, sessionID string, role model.SourceRole, records []model.PartRecord) error {
	recordsJSON, err := json.Marshal(records)
	if err != nil {
		return consistency(err, "sqlite: marshal records")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO source_sets (session_id, source, status, error, records, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?)
		ON CONFLICT (session_id, source)
		DO UPDATE SET status = excluded.status, error = NULL, records = excluded.records, updated_at = excluded.updated_at`,
		sessionID, string(role), string(model.StatusSucceeded), string(recordsJSON), time.Now().UTC(),
	)
	return consistency(err, "sqlite: put records")
}

func (s *SQLiteStore) PutComparison(ctx context.Context, sessionID string, result *model.ComparisonResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return consistency(err, "sqlite: marshal comparison")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comparisons (session_id, result, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id)
		DO UPDATE SET result = excluded.result, created_at = excluded.created_at`,
		sessionID, string(resultJSON), time.Now().UTC(),
	)
	return consistency(err, "sqlite: put comparison")
}

func (s *SQLiteStore) GetStatus(ctx context.Context, sessionID string) (map[model.SourceRole]model.SourceStatus, error) {
	statuses := map[model.SourceRole]model.SourceStatus{
		model.SourceCS:  model.StatusNotStarted,
		model.SourceBOM: model.StatusNotStarted,
		model.SourceSAP: model.StatusNotStarted,
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, status FROM source_sets WHERE session_id = ?`, sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get status")
	}
	defer rows.Close()

	for rows.Next() {
		var source, status string
		if err := rows.Scan(&source, &status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status")
		}
		statuses[model.SourceRole(source)] = model.SourceStatus(status)
	}
	return statuses, eris.Wrap(rows.Err(), "sqlite: status iterate")
}

func (s *SQLiteStore) GetRecords(ctx context.Context, sessionID string, role model.SourceRole) ([]model.PartRecord, error) {
	var recordsJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT records FROM source_sets WHERE session_id = ? AND source = ?`,
		sessionID, string(role),
	).Scan(&recordsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get records")
	}
	if !recordsJSON.Valid {
		return nil, nil
	}

	var records []model.PartRecord
	if err := json.Unmarshal([]byte(recordsJSON.String), &records); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal records")
	}
	return records, nil
}

func (s *SQLiteStore) GetResults(ctx context.Context, sessionID string) (*model.SessionResults, error) {
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM sessions WHERE id = ?`, sessionID,
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrSessionNotFound, "%s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read session")
	}

	results := &model.SessionResults{
		SessionID: sessionID,
		Records:   make(map[model.SourceRole][]model.PartRecord),
		CreatedAt: createdAt,
	}

	results.Statuses, err = s.GetStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	for _, role := range model.AllSources {
		records, err := s.GetRecords(ctx, sessionID, role)
		if err != nil {
			return nil, err
		}
		if records != nil {
			results.Records[role] = records
		}
	}

	var resultJSON string
	err = s.db.QueryRowContext(ctx,
		`SELECT result FROM comparisons WHERE session_id = ?`, sessionID,
	).Scan(&resultJSON)
	if err != nil && err != sql.ErrNoRows {
		return nil, eris.Wrap(err, "sqlite: read comparison")
	}
	if err == nil {
		results.Comparison = &model.ComparisonResult{}
		if err := json.Unmarshal([]byte(resultJSON), results.Comparison); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal comparison")
		}
	}

	return results, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]model.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.created_at,
		       EXISTS(SELECT 1 FROM comparisons c WHERE c.session_id = s.id)
		FROM sessions s
		ORDER BY s.created_at DESC, s.id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var summaries []model.SessionSummary
	for rows.Next() {
		var sum model.SessionSummary
		if err := rows.Scan(&sum.SessionID, &sum.CreatedAt, &sum.Compared); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: sessions iterate")
	}

	for i := range summaries {
		summaries[i].Statuses, err = s.GetStatus(ctx, summaries[i].SessionID)
		if err != nil {
			return nil, err
		}
		summaries[i].RecordCount = make(map[model.SourceRole]int)
		for _, role := range model.AllSources {
			records, err := s.GetRecords(ctx, summaries[i].SessionID, role)
			if err != nil {
				return nil, err
			}
			if records != nil {
				summaries[i].RecordCount[role] = len(records)
			}
		}
	}
	return summaries, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
