package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findSignal(signals []Signal, st SignalType) (Signal, bool) {
	for _, s := range signals {
		if s.Type == st {
			return s, true
		}
	}
	return Signal{}, false
}

func TestDetectBarriers(t *testing.T) {
	d := NewDetector()
	signals := d.AnalyzeSession([]string{
		"I've been too busy with work to walk",
		"my schedule is packed, long hours",
	}, nil)

	sig, ok := findSignal(signals, SignalRecurringBarrier)
	require.True(t, ok)
	assert.Equal(t, SeverityMedium, sig.Severity)
	assert.Contains(t, sig.Description, "time")
	assert.Contains(t, sig.AffectedHabits, "walking")
	assert.NotEmpty(t, sig.Recommendation)
}

func TestDetectHabitDecline(t *testing.T) {
	d := NewDetector()
	signals := d.AnalyzeSession([]string{
		"I stopped walking in the evenings",
		"haven't been walking at all lately",
	}, nil)

	sig, ok := findSignal(signals, SignalHabitDecline)
	require.True(t, ok)
	assert.Equal(t, []string{"walking"}, sig.AffectedHabits)
	assert.Equal(t, SeverityMedium, sig.Severity)
}

func TestDetectHabitImprovement(t *testing.T) {
	d := NewDetector()
	signals := d.AnalyzeSession([]string{"I've been walking daily and it feels good"}, nil)

	sig, ok := findSignal(signals, SignalHabitImprovement)
	require.True(t, ok)
	assert.Equal(t, []string{"walking"}, sig.AffectedHabits)
}

func TestDetectStressCorrelation(t *testing.T) {
	d := NewDetector()
	signals := d.AnalyzeSession([]string{
		"work has been really stressful and I skipped my workouts",
	}, nil)

	sig, ok := findSignal(signals, SignalStressLink)
	require.True(t, ok)
	assert.Contains(t, sig.AffectedHabits, "exercise")
}

func TestRecurringBarrierEscalates(t *testing.T) {
	d := NewDetector()
	previous := []Signal{{
		Type:           SignalRecurringBarrier,
		Description:    "User mentions time-related barriers",
		Severity:       SeverityLow,
		Evidence:       []string{"too busy with work to exercise"},
		Recommendation: "Consider shorter habit sessions",
	}}

	signals := d.AnalyzeSession([]string{"still too busy with work"}, previous)

	var escalated bool
	for _, s := range signals {
		if s.Type == SignalRecurringBarrier && s.Severity == SeverityHigh {
			escalated = true
		}
	}
	assert.True(t, escalated, "repeated barrier should escalate to high severity")
}

func TestDetectHealthTrendRising(t *testing.T) {
	d := NewDetector()
	signals := d.AnalyzeHistory([]string{
		"my bp was 130/85 last month",
		"today the reading was 150/95",
	})

	sig, ok := findSignal(signals, SignalHealthTrend)
	require.True(t, ok)
	assert.Equal(t, SeverityHigh, sig.Severity)
	assert.Contains(t, sig.Description, "upward")
}

func TestDetectHealthTrendImproving(t *testing.T) {
	d := NewDetector()
	signals := d.AnalyzeHistory([]string{
		"reading was 150/95",
		"now it is 132/84",
	})

	sig, ok := findSignal(signals, SignalHealthTrend)
	require.True(t, ok)
	assert.Equal(t, SeverityLow, sig.Severity)
}

func TestNoSignalsFromNeutralChat(t *testing.T) {
	d := NewDetector()
	signals := d.AnalyzeSession([]string{"thanks, talk soon"}, nil)
	assert.Empty(t, signals)
}
