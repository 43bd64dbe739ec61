package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotMergeHigherConfidenceWins(t *testing.T) {
	slot := &FieldSlot{Field: "smoking", Source: SourceUnset}

	ok := slot.merge(FieldCandidate{Value: "no", Confidence: 0.6, Source: SourceRegex}, 1, 0.05)
	assert.True(t, ok)
	assert.Equal(t, "no", slot.Value)

	ok = slot.merge(FieldCandidate{Value: "former", Confidence: 0.9, Source: SourceLLM}, 2, 0.05)
	assert.True(t, ok)
	assert.Equal(t, "former", slot.Value)
	assert.Equal(t, SourceLLM, slot.Source)

	// Lower confidence never displaces a higher one.
	ok = slot.merge(FieldCandidate{Value: "yes", Confidence: 0.5, Source: SourceSemantic}, 3, 0.05)
	assert.False(t, ok)
	assert.Equal(t, "former", slot.Value)
}

func TestSlotMergeEpsilonTiePrefersEarlierTier(t *testing.T) {
	slot := &FieldSlot{Field: "sex", Source: SourceUnset}
	slot.merge(FieldCandidate{Value: "male", Confidence: 0.80, Source: SourceRegex}, 1, 0.05)

	// Within epsilon: semantic outranks regex even at slightly lower confidence.
	ok := slot.merge(FieldCandidate{Value: "male", Confidence: 0.78, Source: SourceSemantic}, 2, 0.05)
	assert.True(t, ok)
	assert.Equal(t, SourceSemantic, slot.Source)

	// Within epsilon but later tier: keep what we have.
	ok = slot.merge(FieldCandidate{Value: "male", Confidence: 0.81, Source: SourceLLM}, 3, 0.05)
	assert.False(t, ok)
	assert.Equal(t, SourceSemantic, slot.Source)
}

func TestSlotMergeOutsideEpsilonIgnoresTier(t *testing.T) {
	slot := &FieldSlot{Field: "age", Source: SourceUnset}
	slot.merge(FieldCandidate{Value: "35", Confidence: 0.7, Source: SourceSemantic}, 1, 0.05)

	ok := slot.merge(FieldCandidate{Value: "36", Confidence: 0.9, Source: SourceRegex}, 2, 0.05)
	assert.True(t, ok)
	assert.Equal(t, "36", slot.Value)
	assert.Equal(t, SourceRegex, slot.Source)
}

func TestResolvedRequiresThresholdAndSource(t *testing.T) {
	var nilSlot *FieldSlot
	assert.False(t, nilSlot.Resolved(0.7))

	slot := &FieldSlot{Field: "age", Value: "35", Confidence: 0.95, Source: SourceSemantic}
	assert.True(t, slot.Resolved(0.7))

	slot.Confidence = 0.4
	assert.False(t, slot.Resolved(0.7))
}
