package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/bom-validator/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRecords(role model.SourceRole) []model.PartRecord {
	qty := 2.0
	coat := true
	return []model.PartRecord{
		{
			Source:      role,
			Identifier:  model.Identifier{ItemNumber: "10"},
			Description: "IMP WEAR RING SS316",
			AbbreviationTokens: []model.Token{
				{Text: "IMP", Recognized: true},
				{Text: "WEAR", Recognized: true},
				{Text: "RING", Recognized: true},
				{Text: "SS316"},
			},
			Quantity:  &qty,
			Material:  "SS316",
			Coating:   &coat,
			RawFields: map[string]string{"category": "Bowl Assembly"},
		},
		{
			Source:      role,
			Description: "GASKET VITON",
			AbbreviationTokens: []model.Token{
				{Text: "GASKET", Recognized: true},
				{Text: "VITON", Recognized: true},
			},
		},
	}
}

func TestSQLiteEnsureSessionIdempotent(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	first, err := st.EnsureSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", first.ID)
	assert.Equal(t, model.StatusNotStarted, first.Statuses[model.SourceCS])

	again, err := st.EnsureSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, again.CreatedAt)
}

func TestSQLiteRecordsRoundTrip(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	_, err := st.EnsureSession(ctx, "s-1")
	require.NoError(t, err)

	want := sampleRecords(model.SourceBOM)
	require.NoError(t, st.PutRecords(ctx, "s-1", model.SourceBOM, want))

	got, err := st.GetRecords(ctx, "s-1", model.SourceBOM)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	statuses, err := st.GetStatus(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, statuses[model.SourceBOM])
	assert.Equal(t, model.StatusNotStarted, statuses[model.SourceCS])
}

func TestSQLitePutRecordsReplaces(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	_, err := st.EnsureSession(ctx, "s-1")
	require.NoError(t, err)

	require.NoError(t, st.PutRecords(ctx, "s-1", model.SourceBOM, sampleRecords(model.SourceBOM)))

	replacement := sampleRecords(model.SourceBOM)[:1]
	require.NoError(t, st.PutRecords(ctx, "s-1", model.SourceBOM, replacement))

	got, err := st.GetRecords(ctx, "s-1", model.SourceBOM)
	require.NoError(t, err)
	assert.Len(t, got, 1, "overwrite replaces, never merges")
}

func TestSQLiteSetStatusFailure(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	_, err := st.EnsureSession(ctx, "s-1")
	require.NoError(t, err)

	require.NoError(t, st.SetStatus(ctx, "s-1", model.SourceSAP, model.StatusFailed, "pdftotext exited 1"))

	statuses, err := st.GetStatus(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, statuses[model.SourceSAP])

	records, err := st.GetRecords(ctx, "s-1", model.SourceSAP)
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestSQLiteGetResults(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	_, err := st.EnsureSession(ctx, "s-1")
	require.NoError(t, err)
	require.NoError(t, st.PutRecords(ctx, "s-1", model.SourceCS, sampleRecords(model.SourceCS)))
	require.NoError(t, st.PutRecords(ctx, "s-1", model.SourceBOM, sampleRecords(model.SourceBOM)))

	comparison := &model.ComparisonResult{
		Groups: []model.MatchGroup{{
			Slots: map[model.SourceRole]*model.PartRecord{
				model.SourceCS:  {Source: model.SourceCS, Description: "GASKET VITON"},
				model.SourceBOM: {Source: model.SourceBOM, Description: "GASKET VITON"},
			},
			MatchBasis: model.BasisAbbreviationFuzzy,
			Confidence: 0.99,
		}},
	}
	require.NoError(t, st.PutComparison(ctx, "s-1", comparison))

	results, err := st.GetResults(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", results.SessionID)
	assert.Len(t, results.Records[model.SourceCS], 2)
	assert.Len(t, results.Records[model.SourceBOM], 2)
	require.NotNil(t, results.Comparison)
	assert.Len(t, results.Comparison.Groups, 1)
}

func TestSQLiteGetResultsUnknownSession(t *testing.T) {
	st := newTestSQLite(t)

	_, err := st.GetResults(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSessionNotFound))
}

func TestSQLiteListSessions(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	_, err := st.EnsureSession(ctx, "s-1")
	require.NoError(t, err)
	_, err = st.EnsureSession(ctx, "s-2")
	require.NoError(t, err)
	require.NoError(t, st.PutRecords(ctx, "s-2", model.SourceBOM, sampleRecords(model.SourceBOM)))
	require.NoError(t, st.PutComparison(ctx, "s-2", &model.ComparisonResult{}))

	summaries, err := st.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := map[string]model.SessionSummary{}
	for _, s := range summaries {
		byID[s.SessionID] = s
	}
	assert.False(t, byID["s-1"].Compared)
	assert.True(t, byID["s-2"].Compared)
	assert.Equal(t, 2, byID["s-2"].RecordCount[model.SourceBOM])
}
