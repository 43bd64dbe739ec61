package intake

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge-ai/healthbridge/pkg/catalog"
)

type failingTier struct{ calls int }

func (f *failingTier) Name() string { return "failing" }

func (f *failingTier) Extract(context.Context, string, string, []catalog.Field) (ExtractionResult, error) {
	f.calls++
	return ExtractionResult{}, errors.New("boom")
}

func TestIsSimpleInput(t *testing.T) {
	simple := []string{
		"yes", "no", "35", "30-39", "male", "never smoked",
		"I don't smoke", "sedentary", "quit years ago", "not really",
	}
	for _, s := range simple {
		assert.True(t, isSimpleInput(s), s)
	}

	complex := []string{
		"I'm 45, my father had a stroke, and I work night shifts at the factory",
		"well it's complicated, I used to exercise but since the surgery I mostly rest",
	}
	for _, s := range complex {
		assert.False(t, isSimpleInput(s), s)
	}
}

func TestLLMFailureFallsThroughToRegex(t *testing.T) {
	logger := log.New(io.Discard)
	llm := &failingTier{}
	extractor := NewTieredExtractor(nil, llm, NewRegexTier(), logger)

	utterance := "I am 52 years old and my doctor says my pressure runs high sometimes"
	result := extractor.Extract(context.Background(), utterance, "", nil)

	require.Equal(t, 1, llm.calls)
	cand, ok := result.Fields["age"]
	require.True(t, ok, "regex fallback should still extract the age")
	assert.Equal(t, "52", cand.Value)
	assert.Equal(t, SourceRegex, cand.Source)
}

func TestSemanticShortCircuitSkipsLLM(t *testing.T) {
	cat := testCatalog(t)
	logger := log.New(io.Discard)
	llm := &failingTier{}
	extractor := NewTieredExtractor(NewSemanticTier(cat, nil, "", logger), llm, NewRegexTier(), logger)

	result := extractor.Extract(context.Background(), "never smoked", "", nil)

	assert.Zero(t, llm.calls)
	assert.Equal(t, "no", result.Fields["smoking"].Value)
}

func TestUrgentSymptomsAlwaysDetected(t *testing.T) {
	cat := testCatalog(t)
	logger := log.New(io.Discard)
	extractor := NewTieredExtractor(NewSemanticTier(cat, nil, "", logger), nil, NewRegexTier(), logger)

	result := extractor.Extract(context.Background(), "I have chest pain when I climb stairs", "", nil)
	assert.Equal(t, []string{"chest pain"}, result.UrgentSymptoms)
}
