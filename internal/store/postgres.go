package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bom-validator/internal/db"
	"github.com/sells-group/bom-validator/internal/model"
)

// PostgresStore implements Store using pgxpool. Unlike the SQLite backend,
// part records are stored one row each and replaced via DELETE + COPY inside
// a transaction, which keeps the per-key write all-or-nothing.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests via pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS source_sets (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'not_started',
	error      TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, source)
);

CREATE TABLE IF NOT EXISTS part_records (
	session_id       TEXT NOT NULL,
	source           TEXT NOT NULL,
	position         INT NOT NULL,
	item_number      TEXT,
	component_number TEXT,
	description      TEXT NOT NULL,
	tokens           JSONB,
	quantity         DOUBLE PRECISION,
	material         TEXT,
	coating          BOOLEAN,
	raw_fields       JSONB,
	PRIMARY KEY (session_id, source, position)
);

CREATE TABLE IF NOT EXISTS comparisons (
	session_id TEXT PRIMARY KEY REFERENCES sessions(id),
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_part_records_key ON part_records(session_id, source);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) EnsureSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, created_at) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		sessionID, time.Now().UTC(),
	); err != nil {
		return nil, consistency(err, "postgres: ensure session")
	}

	var createdAt time.Time
	if err := s.pool.QueryRow(ctx,
		`SELECT created_at FROM sessions WHERE id = $1`, sessionID,
	).Scan(&createdAt); err != nil {
		return nil, eris.Wrap(err, "postgres: read session")
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

func (s *PostgresStore) SetStatus(ctx context.Context, sessionID string, role model.SourceRole, status model.SourceStatus, errDetail string) error {
	var detail *string
	if errDetail != "" {
		detail = &errDetail
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_sets (session_id, source, status, error, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, source)
		DO UPDATE SET status = EXCLUDED.status, error = EXCLUDED.error, updated_at = EXCLUDED.updated_at`,
		sessionID, string(role), string(status), detail, time.Now().UTC(),
	)
	return consistency(err, "postgres: set status")
}

var partRecordColumns = []string{
	"session_id", "source", "position", "item_number", "component_number",
	"description", "tokens", "quantity", "material", "coating", "raw_fields",
}

func (s *PostgresStore) PutRecords(ctx context.Context, sessionID string, role model.SourceRole, records []model.PartRecord) error {
	rows, err := partRecordRows(sessionID, role, records)
	if err != nil {
		return consistency(err, "postgres: encode records")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return consistency(err, "postgres: begin put records")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM part_records WHERE session_id = $1 AND source = $2`,
		sessionID, string(role),
	); err != nil {
		return consistency(err, "postgres: clear records")
	}

	if _, err := db.CopyFrom(ctx, tx, "part_records", partRecordColumns, rows); err != nil {
		return consistency(err, "postgres: copy records")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO source_sets (session_id, source, status, error, updated_at)
		VALUES ($1, $2, $3, NULL, $4)
		ON CONFLICT (session_id, source)
		DO UPDATE SET status = EXCLUDED.status, error = NULL, updated_at = EXCLUDED.updated_at`,
		sessionID, string(role), string(model.StatusSucceeded), time.Now().UTC(),
	); err != nil {
		return consistency(err, "postgres: mark succeeded")
	}

	return consistency(tx.Commit(ctx), "postgres: commit put records")
}

func (s *PostgresStore) PutComparison(ctx context.Context, sessionID string, result *model.ComparisonResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return consistency(err, "postgres: marshal comparison")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO comparisons (session_id, result, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id)
		DO UPDATE SET result = EXCLUDED.result, created_at = EXCLUDED.created_at`,
		sessionID, string(resultJSON), time.Now().UTC(),
	)
	return consistency(err, "postgres: put comparison")
}

func (s *PostgresStore) GetStatus(ctx context.Context, sessionID string) (map[model.SourceRole]model.SourceStatus, error) {
	statuses := map[model.SourceRole]model.SourceStatus{
		model.SourceCS:  model.StatusNotStarted,
		model.SourceBOM: model.StatusNotStarted,
		model.SourceSAP: model.StatusNotStarted,
	}

	rows, err := s.pool.Query(ctx,
		`SELECT source, status FROM source_sets WHERE session_id = $1`, sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get status")
	}
	defer rows.Close()

	for rows.Next() {
		var source, status string
		if err := rows.Scan(&source, &status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status")
		}
		statuses[model.SourceRole(source)] = model.SourceStatus(status)
	}
	return statuses, eris.Wrap(rows.Err(), "postgres: status iterate")
}

func (s *PostgresStore) GetRecords(ctx context.Context, sessionID string, role model.SourceRole) ([]model.PartRecord, error) {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM source_sets WHERE session_id = $1 AND source = $2`,
		sessionID, string(role),
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read source set")
	}
	if status != string(model.StatusSucceeded) {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT item_number, component_number, description, tokens, quantity, material, coating, raw_fields
		FROM part_records
		WHERE session_id = $1 AND source = $2
		ORDER BY position`,
		sessionID, string(role),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get records")
	}
	defer rows.Close()

	records := []model.PartRecord{}
	for rows.Next() {
		rec, err := scanPartRecord(rows, role)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: records iterate")
}

func (s *PostgresStore) GetResults(ctx context.Context, sessionID string) (*model.SessionResults, error) {
	var createdAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT created_at FROM sessions WHERE id = $1`, sessionID,
	).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrSessionNotFound, "%s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read session")
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

	var resultJSON []byte
	err = s.pool.QueryRow(ctx,
		`SELECT result FROM comparisons WHERE session_id = $1`, sessionID,
	).Scan(&resultJSON)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "postgres: read comparison")
	}
	if err == nil {
		results.Comparison = &model.ComparisonResult{}
		if err := json.Unmarshal(resultJSON, results.Comparison); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal comparison")
		}
	}

	return results, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]model.SessionSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.created_at,
		       EXISTS(SELECT 1 FROM comparisons c WHERE c.session_id = s.id)
		FROM sessions s
		ORDER BY s.created_at DESC, s.id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var summaries []model.SessionSummary
	for rows.Next() {
		var sum model.SessionSummary
		if err := rows.Scan(&sum.SessionID, &sum.CreatedAt, &sum.Compared); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: sessions iterate")
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

// partRecordRows flattens records into COPY rows.
func partRecordRows(sessionID string, role model.SourceRole, records []model.PartRecord) ([][]any, error) {
	rows := make([][]any, 0, len(records))
	for i, rec := range records {
		tokensJSON, err := json.Marshal(rec.AbbreviationTokens)
		if err != nil {
			return nil, eris.Wrap(err, "marshal tokens")
		}
		var rawJSON *string
		if len(rec.RawFields) > 0 {
			b, err := json.Marshal(rec.RawFields)
			if err != nil {
				return nil, eris.Wrap(err, "marshal raw fields")
			}
			s := string(b)
			rawJSON = &s
		}
		rows = append(rows, []any{
			sessionID, string(role), i,
			nullable(rec.Identifier.ItemNumber),
			nullable(rec.Identifier.ComponentNumber),
			rec.Description,
			string(tokensJSON),
			rec.Quantity,
			nullable(rec.Material),
			rec.Coating,
			rawJSON,
		})
	}
	return rows, nil
}

func scanPartRecord(rows pgx.Rows, role model.SourceRole) (model.PartRecord, error) {
	var (
		rec                         model.PartRecord
		itemNumber, componentNumber *string
		tokensJSON, rawJSON         []byte
		quantity                    *float64
		material                    *string
		coating                     *bool
	)
	err := rows.Scan(&itemNumber, &componentNumber, &rec.Description,
		&tokensJSON, &quantity, &material, &coating, &rawJSON)
	if err != nil {
		return rec, eris.Wrap(err, "postgres: scan record")
	}

	rec.Source = role
	if itemNumber != nil {
		rec.Identifier.ItemNumber = *itemNumber
	}
	if componentNumber != nil {
		rec.Identifier.ComponentNumber = *componentNumber
	}
	rec.Quantity = quantity
	rec.Coating = coating
	if material != nil {
		rec.Material = *material
	}
	if len(tokensJSON) > 0 {
		if err := json.Unmarshal(tokensJSON, &rec.AbbreviationTokens); err != nil {
			return rec, eris.Wrap(err, "postgres: unmarshal tokens")
		}
	}
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &rec.RawFields); err != nil {
			return rec, eris.Wrap(err, "postgres: unmarshal raw fields")
		}
	}
	return rec, nil
}
