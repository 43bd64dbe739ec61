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

// countingTier wraps a tier and counts invocations; used to prove the LLM
// tier stays cold for canonical inputs.
type countingTier struct {
	inner Tier
	calls int
}

func (c *countingTier) Name() string { return "counting" }

func (c *countingTier) Extract(ctx context.Context, utterance, contextField string, remaining []catalog.Field) (ExtractionResult, error) {
	c.calls++
	if c.inner == nil {
		return newExtractionResult(), nil
	}
	return c.inner.Extract(ctx, utterance, contextField, remaining)
}

func newTestPipeline(t *testing.T) (*TieredExtractor, *countingTier, *catalog.Catalog) {
	t.Helper()
	cat := testCatalog(t)
	logger := log.New(io.Discard)
	llm := &countingTier{}
	extractor := NewTieredExtractor(
		NewSemanticTier(cat, nil, "", logger),
		llm,
		NewRegexTier(),
		logger,
	)
	return extractor, llm, cat
}

func TestIntakeFiveTurnScenario(t *testing.T) {
	extractor, llm, cat := newTestPipeline(t)
	state := NewState("s1", "u1", ModeIntake, cat)
	questions := NewQuestionGenerator(cat)

	answers := []string{"30-39", "male", "no family history", "never smoked", "sedentary"}

	_, field := questions.Welcome(ModeIntake, nil)
	require.Equal(t, "age", field)
	state.AddAssistantTurn("welcome", field)

	for i, answer := range answers {
		require.Equal(t, PhaseCollecting, state.Phase(), "turn %d", i)

		turn := state.AddUserTurn(answer)
		result := extractor.Extract(context.Background(), answer, state.LastQuestionField(), state.RemainingFields())
		state.Apply(result, turn)

		if state.Phase() == PhaseCollecting {
			q, f := questions.Next(state)
			require.NotEmpty(t, q)
			state.AddAssistantTurn(q, f)
		}
	}

	assert.Equal(t, PhaseReady, state.Phase())
	assert.Zero(t, llm.calls, "canonical answers must not reach the llm tier")

	profile := state.Finalize()
	assert.Equal(t, PhaseComplete, state.Phase())
	assert.Equal(t, "35", profile.Value("age"))
	assert.Equal(t, "male", profile.Value("sex"))
	assert.Equal(t, "none", profile.Value("family_history"))
	assert.Equal(t, "no", profile.Value("smoking"))
	assert.Equal(t, "sedentary", profile.Value("activity"))

	for _, name := range []string{"age", "sex", "family_history", "smoking", "activity"} {
		src := profile.Fields[name].Source
		assert.Contains(t, []Source{SourceSemantic, SourceRegex}, src, name)
	}

	// Idempotent: finalizing again returns the same profile.
	assert.Same(t, profile, state.Finalize())
}

func TestIntakeQuestionOrderFollowsCatalogPriority(t *testing.T) {
	_, _, cat := newTestPipeline(t)
	state := NewState("s1", "u1", ModeIntake, cat)
	questions := NewQuestionGenerator(cat)

	_, first := questions.Welcome(ModeIntake, nil)
	state.AddAssistantTurn("welcome", first)
	asked := []string{first}

	answers := map[string]string{
		"age":            "44",
		"sex":            "female",
		"family_history": "none",
		"smoking":        "no",
		"activity":       "moderate",
	}

	for state.Phase() == PhaseCollecting {
		field := state.LastQuestionField()
		turn := state.AddUserTurn(answers[field])
		state.Apply(ExtractionResult{Fields: map[string]FieldCandidate{
			field: {Value: answers[field], Confidence: 0.95, Source: SourceSemantic},
		}}, turn)
		if state.Phase() != PhaseCollecting {
			break
		}
		_, next := questions.Next(state)
		asked = append(asked, next)
		state.AddAssistantTurn("q", next)
	}

	assert.Equal(t, []string{"age", "sex", "family_history", "smoking", "activity"}, asked)
}

func TestForceCompleteOnSkipWord(t *testing.T) {
	_, _, cat := newTestPipeline(t)
	state := NewState("s1", "u1", ModeIntake, cat)

	state.AddUserTurn("skip")
	state.Apply(ExtractionResult{}, 0)
	assert.Equal(t, PhaseReady, state.Phase())
}

func TestTurnCapForcesReady(t *testing.T) {
	extractor, _, cat := newTestPipeline(t)
	state := NewState("s1", "u1", ModeIntake, cat)

	for i := 0; i < intakeMaxTurns; i++ {
		turn := state.AddUserTurn("hmm let me think about it for a moment longer")
		result := extractor.Extract(context.Background(), "hmm", "", state.RemainingFields())
		state.Apply(result, turn)
	}
	assert.Equal(t, PhaseReady, state.Phase())
}

func TestSmokingSkippedOverAgeLimit(t *testing.T) {
	_, _, cat := newTestPipeline(t)
	state := NewState("s1", "u1", ModeIntake, cat)

	state.AddUserTurn("80")
	state.Apply(ExtractionResult{Fields: map[string]FieldCandidate{
		"age": {Value: "80", Confidence: 0.95, Source: SourceSemantic},
	}}, 0)

	assert.NotContains(t, state.MissingRequired(), "smoking")
}

func TestInvalidValueLeavesSlotUnresolved(t *testing.T) {
	_, _, cat := newTestPipeline(t)
	state := NewState("s1", "u1", ModeIntake, cat)

	state.AddUserTurn("potato")
	state.Apply(ExtractionResult{Fields: map[string]FieldCandidate{
		"sex": {Value: "potato", Confidence: 0.9, Source: SourceLLM},
		"age": {Value: "900", Confidence: 0.9, Source: SourceLLM},
	}}, 0)

	assert.False(t, state.Resolved("sex"))
	assert.False(t, state.Resolved("age"))
	assert.Contains(t, state.MissingRequired(), "sex")
}

func TestUrgentFlagsAccumulateOnce(t *testing.T) {
	extractor, _, cat := newTestPipeline(t)
	state := NewState("s1", "u1", ModeIntake, cat)

	for i := 0; i < 2; i++ {
		turn := state.AddUserTurn("I have chest pain and blurred vision")
		result := extractor.Extract(context.Background(), "I have chest pain and blurred vision", "", nil)
		state.Apply(result, turn)
	}

	assert.True(t, state.HasUrgent())
	assert.Equal(t, []string{"chest pain", "vision problems"}, state.UrgentFlags())
}

func TestAntiLoopGuardStopsReasking(t *testing.T) {
	_, _, cat := newTestPipeline(t)
	state := NewState("s1", "u1", ModeIntake, cat)
	questions := NewQuestionGenerator(cat)

	// Never answer the age question; the generator must move on after the
	// attempt bound instead of looping forever.
	fields := map[string]int{}
	for i := 0; i < 20; i++ {
		q, f := questions.Next(state)
		if q == "" {
			break
		}
		fields[f]++
		state.AddAssistantTurn(q, f)
		state.AddUserTurn("mumble")
	}

	for name, count := range fields {
		assert.LessOrEqual(t, count, maxAskAttempts, name)
	}
}
