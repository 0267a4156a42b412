package matcher

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/bom-validator/internal/model"
	"github.com/sells-group/bom-validator/internal/normalize"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testNorm = normalize.New(normalize.DefaultDictionary())

// rec builds a tokenized part record for tests.
func rec(role model.SourceRole, item, desc string) model.PartRecord {
	return model.PartRecord{
		Source:             role,
		Identifier:         model.Identifier{ItemNumber: item},
		Description:        desc,
		AbbreviationTokens: testNorm.Tokenize(desc),
	}
}

func TestCompareRequiresTwoSources(t *testing.T) {
	_, err := Compare(map[model.SourceRole][]model.PartRecord{
		model.SourceBOM: {rec(model.SourceBOM, "10", "IMPELLER")},
	}, DefaultConfig())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInsufficientSources))
}

func TestIdentifierMatchBeatsFuzzy(t *testing.T) {
	// Same item number with unrelated descriptions still pairs up at 1.0.
	result, err := Compare(map[model.SourceRole][]model.PartRecord{
		model.SourceCS:  {rec(model.SourceCS, "010", "STRAINER SS316")},
		model.SourceBOM: {rec(model.SourceBOM, "10", "SOLE PLT MS")},
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Equal(t, model.BasisIdentifier, g.MatchBasis)
	assert.Equal(t, 1.0, g.Confidence)
	assert.Equal(t, 2, g.PopulatedSlots())
	assert.Empty(t, result.Unmatched)
}

func TestIdentifierNormalization(t *testing.T) {
	assert.Equal(t, "10", normalizeIdentifier(model.Identifier{ItemNumber: "0010"}))
	assert.Equal(t, "10", normalizeIdentifier(model.Identifier{ItemNumber: " 10 "}))
	assert.Equal(t, "0", normalizeIdentifier(model.Identifier{ItemNumber: "000"}))
	assert.Equal(t, "A10", normalizeIdentifier(model.Identifier{ItemNumber: "a10"}))
	assert.Equal(t, "77", normalizeIdentifier(model.Identifier{ComponentNumber: "77"}), "component number is the fallback")
	assert.Equal(t, "", normalizeIdentifier(model.Identifier{}))
}

func TestFuzzyMatchSimilarDescriptions(t *testing.T) {
	result, err := Compare(map[model.SourceRole][]model.PartRecord{
		model.SourceCS:  {rec(model.SourceCS, "", "HEX BOLT M12 SS316")},
		model.SourceSAP: {rec(model.SourceSAP, "", "HEX BOLT M12")},
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Equal(t, model.BasisAbbreviationFuzzy, g.MatchBasis)
	assert.Greater(t, g.Confidence, 0.45)
	assert.Less(t, g.Confidence, 1.0, "fuzzy confidence never reaches 1.0")
}

func TestFuzzyMatchPrefersCloserCandidate(t *testing.T) {
	result, err := Compare(map[model.SourceRole][]model.PartRecord{
		model.SourceCS: {
			rec(model.SourceCS, "", "GASKET VITON 150NB"),
		},
		model.SourceBOM: {
			rec(model.SourceBOM, "", "GASKET VITON 150NB"),
			rec(model.SourceBOM, "", "GASKET NITRILE 80NB"),
		},
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Equal(t, "GASKET VITON 150NB", g.Slots[model.SourceBOM].Description)

	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, "GASKET NITRILE 80NB", result.Unmatched[0].Record.Description)
}

func TestUnmatchedReasons(t *testing.T) {
	result, err := Compare(map[model.SourceRole][]model.PartRecord{
		model.SourceCS: {
			rec(model.SourceCS, "", "IMPELLER WEAR RING SS316"),
			rec(model.SourceCS, "", "COOLING COIL CU"),
		},
		model.SourceBOM: {
			rec(model.SourceBOM, "", "IMP WEAR RING SS316"),
		},
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Unmatched, 1)
	u := result.Unmatched[0]
	assert.Equal(t, "COOLING COIL CU", u.Record.Description)
	assert.Equal(t, model.ReasonBelowConfidenceThreshold, u.Reason,
		"a scored but rejected candidate is below-threshold, not no-candidate")
}

func TestNoCandidateReason(t *testing.T) {
	// An empty counterpart source means no pair was ever scored.
	result, err := Compare(map[model.SourceRole][]model.PartRecord{
		model.SourceCS:  {rec(model.SourceCS, "", "IMPELLER CF8M")},
		model.SourceBOM: {},
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, model.ReasonNoCandidate, result.Unmatched[0].Reason)
}

func TestThreeSourceGroup(t *testing.T) {
	result, err := Compare(map[model.SourceRole][]model.PartRecord{
		model.SourceCS:  {rec(model.SourceCS, "20", "SHAFT RH SS410")},
		model.SourceBOM: {rec(model.SourceBOM, "20", "SHAFT RH SS410")},
		model.SourceSAP: {rec(model.SourceSAP, "", "PUMP SHAFT SS410")},
	}, DefaultConfig())
	require.NoError(t, err)

	// CS and BOM pair on the identifier; SAP can only join fuzzily, and
	// identifier groups never reopen, so SAP stays out or unmatched.
	total := 0
	for _, g := range result.Groups {
		total += g.PopulatedSlots()
	}
	total += len(result.Unmatched)
	assert.Equal(t, 3, total, "every record lands exactly once")
}

func TestPartitionInvariant(t *testing.T) {
	records := map[model.SourceRole][]model.PartRecord{
		model.SourceCS: {
			rec(model.SourceCS, "10", "STRAINER SS316"),
			rec(model.SourceCS, "20", "SUC MTH CF8M"),
			rec(model.SourceCS, "", "GASKET VITON"),
		},
		model.SourceBOM: {
			rec(model.SourceBOM, "10", "STRAINER SS316"),
			rec(model.SourceBOM, "", "GASKET VITON 150NB"),
			rec(model.SourceBOM, "", "MYSTERY WIDGET"),
		},
		model.SourceSAP: {
			rec(model.SourceSAP, "", "Strainer SS316"),
		},
	}

	result, err := Compare(records, DefaultConfig())
	require.NoError(t, err)

	want := 0
	for _, recs := range records {
		want += len(recs)
	}
	assert.Equal(t, want, result.RecordCount())

	for _, g := range result.Groups {
		assert.GreaterOrEqual(t, g.PopulatedSlots(), 2, "groups always span at least two sources")
	}
}

func TestCompareDeterministic(t *testing.T) {
	records := map[model.SourceRole][]model.PartRecord{
		model.SourceCS: {
			rec(model.SourceCS, "", "GASKET VITON 150NB"),
			rec(model.SourceCS, "", "GASKET VITON 80NB"),
		},
		model.SourceBOM: {
			rec(model.SourceBOM, "", "GASKET VITON 80NB"),
			rec(model.SourceBOM, "", "GASKET VITON 150NB"),
		},
	}

	first, err := Compare(records, DefaultConfig())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Compare(records, DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRepeatedIdentifiersPairPositionally(t *testing.T) {
	result, err := Compare(map[model.SourceRole][]model.PartRecord{
		model.SourceCS: {
			rec(model.SourceCS, "30", "GLD PACK GRAPHITE"),
			rec(model.SourceCS, "30", "GLD PACK PTFE"),
		},
		model.SourceBOM: {
			rec(model.SourceBOM, "30", "GLD PACK GRAPHITE"),
			rec(model.SourceBOM, "30", "GLD PACK PTFE"),
		},
	}, DefaultConfig())
	require.NoError(t, err)

	assert.Len(t, result.Groups, 2)
	assert.Equal(t, 4, result.RecordCount())
}
