package intake

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
)

// SignalType classifies a behavioral signal found in conversation history.
type SignalType string

const (
	SignalHabitDecline     SignalType = "habit_decline"
	SignalHabitImprovement SignalType = "habit_improvement"
	SignalRecurringBarrier SignalType = "recurring_barrier"
	SignalStressLink       SignalType = "stress_correlation"
	SignalHealthTrend      SignalType = "health_trend"
)

// SignalSeverity grades how urgently a signal needs attention.
type SignalSeverity string

const (
	SeverityLow      SignalSeverity = "low"
	SeverityMedium   SignalSeverity = "medium"
	SeverityHigh     SignalSeverity = "high"
	SeverityCritical SignalSeverity = "critical"
)

// Signal is one detected behavioral pattern. Signals are pure derived data:
// the detector takes a snapshot of history and returns them, and the
// orchestrator decides what to persist.
type Signal struct {
	Type           SignalType     `json:"type"`
	Description    string         `json:"description"`
	Severity       SignalSeverity `json:"severity"`
	Evidence       []string       `json:"evidence"`
	Recommendation string         `json:"recommendation,omitempty"`
	AffectedHabits []string       `json:"affectedHabits,omitempty"`
	Confidence     float64        `json:"confidence"`
	DetectedAt     time.Time      `json:"detectedAt"`
}

var barrierKeywords = map[string][]string{
	"time":       {"busy", "no time", "work", "schedule", "hours", "late"},
	"weather":    {"rain", "cold", "hot", "weather", "season", "flood"},
	"health":     {"sick", "injury", "pain", "tired", "fatigue", "unwell"},
	"motivation": {"lazy", "don't feel", "can't be bothered", "forgot", "skipped"},
	"access":     {"expensive", "afford", "no access", "far", "unavailable"},
	"social":     {"family", "kids", "caring for", "responsibilities"},
}

var barrierRecommendations = map[string]string{
	"time":       "Consider shorter habit sessions (10 min instead of 30) or habit stacking with existing routines",
	"weather":    "Suggest indoor alternatives: home exercises, indoor walking, mall walking",
	"health":     "Modify habits to accommodate current health status, consult healthcare provider",
	"motivation": "Break habits into smaller steps, use habit tracking, find an accountability partner",
	"access":     "Find free or low-cost alternatives, community resources, home-based options",
	"social":     "Involve family in habits, find time-efficient options, adjust expectations temporarily",
}

var habitKeywords = map[string][]string{
	"walking":    {"walk", "walking", "steps", "stroll"},
	"exercise":   {"exercise", "gym", "workout", "run", "jog", "swim"},
	"diet":       {"eat", "food", "diet", "salt", "sugar", "vegetable", "fruit"},
	"water":      {"water", "hydrat", "fluid"},
	"sleep":      {"sleep", "rest", "bed", "insomnia"},
	"medication": {"medicine", "medication", "pill", "tablet"},
	"monitoring": {"measure", "check", "monitor", "reading", "bp", "blood pressure", "weight"},
}

var positiveStatus = []string{"doing", "following", "keeping", "maintained", "success", "good", "well", "daily", "regularly"}

var negativeStatus = []string{"stopped", "quit", "can't", "haven't", "struggle", "difficult", "hard", "failed", "missed", "skipped"}

var stressKeywords = []string{"stress", "stressed", "anxious", "anxiety", "overwhelmed", "pressure", "worried", "tension"}

var bpReadingRe = regexp.MustCompile(`(\d{2,3})\s*/\s*(\d{2,3})`)

// Detector scans accumulated messages for behavioral signals. It holds no
// state of its own; every call is a pure function of its inputs.
type Detector struct{}

func NewDetector() *Detector { return &Detector{} }

// AnalyzeSession inspects the current session's user messages, escalating
// any barrier that already appeared in previous signals.
func (d *Detector) AnalyzeSession(messages []string, previous []Signal) []Signal {
	var signals []Signal
	signals = append(signals, d.detectBarriers(messages)...)
	signals = append(signals, d.detectHabitChanges(messages)...)
	signals = append(signals, d.detectRecurring(messages, previous)...)
	signals = append(signals, d.detectStressLink(messages)...)
	return signals
}

// AnalyzeHistory looks across recalled memory texts for long-term
// trajectories and health metric trends.
func (d *Detector) AnalyzeHistory(texts []string) []Signal {
	var signals []Signal
	signals = append(signals, d.detectTrajectory(texts)...)
	signals = append(signals, d.detectHealthTrends(texts)...)
	return signals
}

func (d *Detector) detectBarriers(messages []string) []Signal {
	combined := strings.ToLower(strings.Join(messages, " "))
	var signals []Signal
	for barrier, keywords := range barrierKeywords {
		var mentions []string
		for _, msg := range messages {
			if containsAny(strings.ToLower(msg), keywords) {
				mentions = append(mentions, msg)
			}
		}
		if len(mentions) == 0 {
			continue
		}
		var affected []string
		for habit, kws := range habitKeywords {
			if containsAny(combined, kws) {
				affected = append(affected, habit)
			}
		}
		severity := SeverityLow
		if len(mentions) >= 2 {
			severity = SeverityMedium
		}
		signals = append(signals, Signal{
			Type:           SignalRecurringBarrier,
			Description:    fmt.Sprintf("User mentions %s-related barriers", barrier),
			Severity:       severity,
			Evidence:       firstN(mentions, 3),
			Recommendation: barrierRecommendations[barrier],
			AffectedHabits: affected,
			Confidence:     0.7 + 0.1*float64(min(len(mentions), 3)),
			DetectedAt:     time.Now(),
		})
	}
	return signals
}

func (d *Detector) detectHabitChanges(messages []string) []Signal {
	var signals []Signal
	for habit, keywords := range habitKeywords {
		var positive, negative []string
		for _, msg := range messages {
			lower := strings.ToLower(msg)
			if !containsAny(lower, keywords) {
				continue
			}
			if containsAny(lower, positiveStatus) {
				positive = append(positive, msg)
			}
			if containsAny(lower, negativeStatus) {
				negative = append(negative, msg)
			}
		}
		switch {
		case len(negative) > len(positive) && len(negative) >= 1:
			severity := SeverityLow
			if len(negative) >= 2 {
				severity = SeverityMedium
			}
			signals = append(signals, Signal{
				Type:           SignalHabitDecline,
				Description:    fmt.Sprintf("User reports struggling with %s habit", habit),
				Severity:       severity,
				Evidence:       firstN(negative, 3),
				Recommendation: fmt.Sprintf("Consider modifying %s habit or addressing barriers", habit),
				AffectedHabits: []string{habit},
				Confidence:     0.6 + 0.1*float64(len(negative)),
				DetectedAt:     time.Now(),
			})
		case len(positive) > len(negative) && len(positive) >= 1:
			signals = append(signals, Signal{
				Type:           SignalHabitImprovement,
				Description:    fmt.Sprintf("User reports success with %s habit", habit),
				Severity:       SeverityLow,
				Evidence:       firstN(positive, 3),
				Recommendation: fmt.Sprintf("Reinforce and potentially build on %s success", habit),
				AffectedHabits: []string{habit},
				Confidence:     0.6 + 0.1*float64(len(positive)),
				DetectedAt:     time.Now(),
			})
		}
	}
	return signals
}

func (d *Detector) detectRecurring(messages []string, previous []Signal) []Signal {
	combined := strings.ToLower(strings.Join(messages, " "))
	var signals []Signal
	for _, prev := range previous {
		if prev.Type != SignalRecurringBarrier {
			continue
		}
		for _, evidence := range prev.Evidence {
			words := strings.Fields(strings.ToLower(evidence))
			if containsAny(combined, firstN(words, 5)) {
				signals = append(signals, Signal{
					Type:           SignalRecurringBarrier,
					Description:    "Recurring issue: " + prev.Description,
					Severity:       SeverityHigh,
					Evidence:       append(append([]string{}, prev.Evidence...), "Mentioned again in current session"),
					Recommendation: "This barrier persists, consider a more significant intervention: " + prev.Recommendation,
					AffectedHabits: prev.AffectedHabits,
					Confidence:     0.85,
					DetectedAt:     time.Now(),
				})
				break
			}
		}
	}
	return signals
}

func (d *Detector) detectStressLink(messages []string) []Signal {
	combined := strings.ToLower(strings.Join(messages, " "))
	if !containsAny(combined, stressKeywords) {
		return nil
	}
	var struggling []string
	hasNegative := containsAny(combined, negativeStatus)
	for habit, keywords := range habitKeywords {
		if containsAny(combined, keywords) && hasNegative {
			struggling = append(struggling, habit)
		}
	}
	for _, msg := range messages {
		lower := strings.ToLower(msg)
		if !containsAny(lower, stressKeywords) {
			continue
		}
		for habit, keywords := range habitKeywords {
			if containsAny(lower, keywords) && !lo.Contains(struggling, habit) {
				struggling = append(struggling, habit)
			}
		}
	}
	if len(struggling) == 0 {
		return nil
	}
	var evidence []string
	for _, msg := range messages {
		if containsAny(strings.ToLower(msg), stressKeywords) {
			evidence = append(evidence, msg)
		}
	}
	return []Signal{{
		Type:           SignalStressLink,
		Description:    "Stress appears linked to difficulty with habits",
		Severity:       SeverityMedium,
		Evidence:       firstN(evidence, 2),
		Recommendation: "Address stress management first: relaxation techniques, reduced habit expectations for now",
		AffectedHabits: struggling,
		Confidence:     0.65,
		DetectedAt:     time.Now(),
	}}
}

func (d *Detector) detectTrajectory(texts []string) []Signal {
	var signals []Signal
	for habit, keywords := range habitKeywords {
		positive, negative := 0, 0
		for _, text := range texts {
			lower := strings.ToLower(text)
			if !containsAny(lower, keywords) {
				continue
			}
			if containsAny(lower, positiveStatus) {
				positive++
			}
			if containsAny(lower, negativeStatus) {
				negative++
			}
		}
		if positive+negative >= 2 && negative > positive*2 {
			signals = append(signals, Signal{
				Type:           SignalHabitDecline,
				Description:    fmt.Sprintf("Historical pattern: %s habit shows declining adherence", habit),
				Severity:       SeverityHigh,
				Evidence:       []string{fmt.Sprintf("%d negative mentions vs %d positive", negative, positive)},
				Recommendation: fmt.Sprintf("Significant intervention needed for %s, consider a habit redesign", habit),
				AffectedHabits: []string{habit},
				Confidence:     0.75,
				DetectedAt:     time.Now(),
			})
		}
	}
	return signals
}

func (d *Detector) detectHealthTrends(texts []string) []Signal {
	var systolic []int
	var readings []string
	for _, text := range texts {
		for _, m := range bpReadingRe.FindAllStringSubmatch(text, -1) {
			sys, dia := atoi(m[1]), atoi(m[2])
			if sys >= 70 && sys <= 250 && dia >= 40 && dia <= 150 {
				systolic = append(systolic, sys)
				readings = append(readings, m[0])
			}
		}
	}
	if len(systolic) < 2 {
		return nil
	}
	first, last := systolic[0], systolic[len(systolic)-1]
	switch {
	case last > first+10:
		return []Signal{{
			Type:           SignalHealthTrend,
			Description:    "Blood pressure appears to be trending upward",
			Severity:       SeverityHigh,
			Evidence:       []string{"BP readings: " + strings.Join(readings, ", ")},
			Recommendation: "Monitor closely, consider medication review, reinforce lifestyle modifications",
			Confidence:     0.7,
			DetectedAt:     time.Now(),
		}}
	case last < first-10:
		return []Signal{{
			Type:           SignalHealthTrend,
			Description:    "Blood pressure shows improvement",
			Severity:       SeverityLow,
			Evidence:       []string{"BP readings: " + strings.Join(readings, ", ")},
			Recommendation: "Continue current approach, maintain lifestyle modifications",
			Confidence:     0.7,
			DetectedAt:     time.Now(),
		}}
	}
	return nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func firstN(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
