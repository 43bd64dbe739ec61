// Package agents runs the fixed reasoning pipeline over a finalized profile:
// risk estimation and constraint analysis in parallel, then habit planning,
// then an authoritative safety review of the outgoing text.
package agents

// RiskBand is a coarse preventive-care risk estimate, never a diagnosis.
type RiskBand string

const (
	RiskLow      RiskBand = "low"
	RiskModerate RiskBand = "moderate"
	RiskHigh     RiskBand = "high"
	RiskUnknown  RiskBand = "unknown"
)

// RiskAssessment is the risk stage output.
type RiskAssessment struct {
	HypertensionRisk RiskBand `json:"hypertension_risk"`
	DiabetesRisk     RiskBand `json:"diabetes_risk"`
	KeyDrivers       []string `json:"key_drivers"`
	Explanation      string   `json:"explanation"`
}

// Constraints captures social and environmental limits on what advice is
// realistic for the user.
type Constraints struct {
	ExerciseSafety  string `json:"exercise_safety"`
	FoodAccess      string `json:"food_access"`
	TimeConstraints string `json:"time_constraints"`
	FinancialBand   string `json:"financial_band"`
}

// Habit is one tiny-habit recommendation.
type Habit struct {
	Action    string `json:"action"`
	Frequency string `json:"frequency"`
	Trigger   string `json:"trigger"`
	Rationale string `json:"rationale"`
}

// HabitPlan is the plan stage output.
type HabitPlan struct {
	DurationWeeks       int      `json:"duration_weeks"`
	FocusAreas          []string `json:"focus_areas"`
	Habits              []Habit  `json:"habits"`
	MotivationalMessage string   `json:"motivational_message"`
}

// SafetyReview is the final stage verdict over the outgoing text.
type SafetyReview struct {
	IsSafe          bool     `json:"is_safe"`
	FlaggedIssues   []string `json:"flagged_issues"`
	RevisedResponse string   `json:"revised_response"`
}

// StageStatus records how a stage's output was obtained.
type StageStatus string

const (
	// StatusOK means the first attempt parsed cleanly.
	StatusOK StageStatus = "ok"
	// StatusRetried means the first attempt failed and the stricter retry
	// succeeded.
	StatusRetried StageStatus = "retried"
	// StatusDegraded means both attempts failed and the stage's safe
	// default was used instead.
	StatusDegraded StageStatus = "degraded"
)

// StageMeta is the audit record attached to every stage output: how it was
// produced and which retrieval candidates and memory records it consumed.
type StageMeta struct {
	Name      StageName   `json:"name"`
	Status    StageStatus `json:"status"`
	Sources   []string    `json:"sources,omitempty"`
	MemoryIDs []string    `json:"memoryIds,omitempty"`
}

// StageName identifies a pipeline stage.
type StageName string

const (
	StageRisk        StageName = "risk"
	StageConstraints StageName = "constraints"
	StagePlan        StageName = "habit_plan"
	StageSafety      StageName = "safety_review"
)

// Output is the full pipeline result. Reply is what the user sees; RawReply
// is the pre-review text, kept even when the safety stage replaces it.
type Output struct {
	Risk            RiskAssessment `json:"risk"`
	RiskMeta        StageMeta      `json:"riskMeta"`
	Constraints     Constraints    `json:"constraints"`
	ConstraintsMeta StageMeta      `json:"constraintsMeta"`
	Plan            HabitPlan      `json:"plan"`
	PlanMeta        StageMeta      `json:"planMeta"`
	Safety          SafetyReview   `json:"safety"`
	SafetyMeta      StageMeta      `json:"safetyMeta"`

	Reply            string `json:"reply"`
	RawReply         string `json:"rawReply"`
	SafetyOverridden bool   `json:"safetyOverridden"`
}

// Degraded lists the stages that fell back to their defaults.
func (o *Output) Degraded() []StageName {
	var names []StageName
	for _, meta := range []StageMeta{o.RiskMeta, o.ConstraintsMeta, o.PlanMeta, o.SafetyMeta} {
		if meta.Status == StatusDegraded {
			names = append(names, meta.Name)
		}
	}
	return names
}

func defaultRiskAssessment() RiskAssessment {
	return RiskAssessment{
		HypertensionRisk: RiskUnknown,
		DiabetesRisk:     RiskUnknown,
		KeyDrivers:       nil,
		Explanation: "We couldn't complete a full risk estimate this time. " +
			"The suggestions below stick to habits that are safe for almost everyone.",
	}
}

func defaultConstraints() Constraints {
	return Constraints{
		ExerciseSafety:  "unknown",
		FoodAccess:      "unknown",
		TimeConstraints: "unknown",
		FinancialBand:   "unknown",
	}
}

func defaultHabitPlan() HabitPlan {
	return HabitPlan{
		DurationWeeks: 4,
		FocusAreas:    []string{"Move a little more", "Drink water instead of sugary drinks"},
		Habits: []Habit{
			{
				Action:    "Walk 10 minutes",
				Frequency: "3x per week",
				Trigger:   "After a meal",
				Rationale: "Short walks after eating help regulate blood pressure and blood sugar.",
			},
			{
				Action:    "Swap one sugary drink for water",
				Frequency: "Daily",
				Trigger:   "With lunch",
				Rationale: "Cutting sugary drinks is one of the cheapest ways to lower diabetes risk.",
			},
		},
		MotivationalMessage: "Small steps add up. Pick whichever habit feels easiest and start there.",
	}
}

// defaultSafetyReview is deliberately conservative: an unreviewed reply is
// treated as unsafe so the fallback message ships instead.
func defaultSafetyReview() SafetyReview {
	return SafetyReview{
		IsSafe:        false,
		FlaggedIssues: []string{"safety review unavailable"},
	}
}
