package intake

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge-ai/healthbridge/pkg/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

func newTestSemanticTier(t *testing.T) *SemanticTier {
	t.Helper()
	// No embedder: string strategies only, which is also the degraded path.
	return NewSemanticTier(testCatalog(t), nil, "", log.New(io.Discard))
}

func TestSemanticExactMatch(t *testing.T) {
	tier := newTestSemanticTier(t)

	cases := []struct {
		utterance string
		field     string
		value     string
	}{
		{"male", "sex", "male"},
		{"never smoked", "smoking", "no"},
		{"sedentary", "activity", "sedentary"},
		{"no family history", "family_history", "none"},
		{"quit", "smoking", "former"},
		{"vegetarian", "diet", "vegetarian"},
	}
	for _, tc := range cases {
		result, err := tier.Extract(context.Background(), tc.utterance, "", nil)
		require.NoError(t, err, tc.utterance)
		cand, ok := result.Fields[tc.field]
		require.True(t, ok, "expected %q to fill %s", tc.utterance, tc.field)
		assert.Equal(t, tc.value, cand.Value, tc.utterance)
		assert.Equal(t, SourceSemantic, cand.Source)
		assert.GreaterOrEqual(t, cand.Confidence, 0.7, tc.utterance)
	}
}

func TestSemanticAgeExtraction(t *testing.T) {
	tier := newTestSemanticTier(t)

	cases := []struct {
		utterance string
		age       string
	}{
		{"35", "35"},
		{"I'm 42 years old", "42"},
		{"30-39", "35"},
		{"mid 40s", "45"},
		{"early 50s", "52"},
		{"forty five", "45"},
	}
	for _, tc := range cases {
		result, err := tier.Extract(context.Background(), tc.utterance, "", nil)
		require.NoError(t, err)
		cand, ok := result.Fields["age"]
		require.True(t, ok, "expected %q to yield an age", tc.utterance)
		assert.Equal(t, tc.age, cand.Value, tc.utterance)
	}
}

func TestSemanticNegativeIntentUsesContextField(t *testing.T) {
	tier := newTestSemanticTier(t)

	result, err := tier.Extract(context.Background(), "nope", "smoking", nil)
	require.NoError(t, err)
	cand, ok := result.Fields["smoking"]
	require.True(t, ok)
	assert.Equal(t, "no", cand.Value)

	result, err = tier.Extract(context.Background(), "nope", "conditions", nil)
	require.NoError(t, err)
	cand, ok = result.Fields["conditions"]
	require.True(t, ok)
	assert.Equal(t, "none", cand.Value)
}

func TestSemanticAffirmativeIntentUsesContextField(t *testing.T) {
	tier := newTestSemanticTier(t)

	result, err := tier.Extract(context.Background(), "yes", "family_history", nil)
	require.NoError(t, err)
	cand, ok := result.Fields["family_history"]
	require.True(t, ok)
	assert.Equal(t, "yes", cand.Value)
}

func TestSemanticFamilyContextRoutesToHistory(t *testing.T) {
	tier := newTestSemanticTier(t)

	result, err := tier.Extract(context.Background(), "my father has diabetes", "", nil)
	require.NoError(t, err)

	cand, ok := result.Fields["family_history"]
	require.True(t, ok)
	assert.Contains(t, cand.Value, "father")

	// The condition belongs to the relative, not the user.
	_, ok = result.Fields["conditions"]
	assert.False(t, ok)
}

func TestSemanticFuzzyHandlesTypos(t *testing.T) {
	tier := newTestSemanticTier(t)

	result, err := tier.Extract(context.Background(), "hypertenson", "", nil)
	require.NoError(t, err)
	cand, ok := result.Fields["conditions"]
	require.True(t, ok)
	assert.Equal(t, "hypertension", cand.Value)
}

func TestSemanticImpliedHints(t *testing.T) {
	tier := newTestSemanticTier(t)

	result, err := tier.Extract(context.Background(), "I work night shift and I'm always stressed", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "irregular (works nights)", result.Implied["sleep_pattern"])
	assert.Equal(t, "mentioned stress", result.Implied["stress"])
}

func TestFuzzyScore(t *testing.T) {
	assert.Equal(t, 1.0, fuzzyScore("same", "same"))
	assert.Greater(t, fuzzyScore("diabetis", "diabetes"), 0.7)
	assert.Equal(t, 0.0, fuzzyScore("a", "completely different"))
}
