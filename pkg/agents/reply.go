package agents

import (
	"fmt"
	"strings"
)

// safeFallbackMessage ships whenever the safety review rejects the generated
// reply without providing a rewrite, or the review itself could not run.
const safeFallbackMessage = "Thanks for sharing all of that with me. I wasn't able to " +
	"put together a personalized plan right now, so here's general guidance that is " +
	"safe for almost everyone: take a short walk after meals, choose water over sugary " +
	"drinks, and go easy on salt. If you ever have chest pain, trouble breathing, or " +
	"sudden weakness, please seek emergency care immediately. For personal medical " +
	"advice, talk to a health professional."

// renderReply composes the user-facing message from the risk explanation and
// the habit plan. This is the text the safety review judges.
func renderReply(risk RiskAssessment, plan HabitPlan) string {
	var b strings.Builder

	if risk.Explanation != "" {
		b.WriteString(risk.Explanation)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Here's a %d-week plan to start with", plan.DurationWeeks)
	if len(plan.FocusAreas) > 0 {
		fmt.Fprintf(&b, ", focused on %s", strings.Join(plan.FocusAreas, " and "))
	}
	b.WriteString(":\n")

	for i, habit := range plan.Habits {
		fmt.Fprintf(&b, "%d. %s (%s, %s)", i+1, habit.Action, habit.Frequency, strings.ToLower(habit.Trigger))
		if habit.Rationale != "" {
			fmt.Fprintf(&b, " %s", habit.Rationale)
		}
		b.WriteString("\n")
	}

	if plan.MotivationalMessage != "" {
		b.WriteString("\n")
		b.WriteString(plan.MotivationalMessage)
	}
	return strings.TrimRight(b.String(), "\n")
}

// riskSummary is the compact risk picture written back to memory.
func riskSummary(risk RiskAssessment) string {
	s := fmt.Sprintf("hypertension risk %s, diabetes risk %s", risk.HypertensionRisk, risk.DiabetesRisk)
	if len(risk.KeyDrivers) > 0 {
		s += "; drivers: " + strings.Join(risk.KeyDrivers, ", ")
	}
	return s
}

// constraintsSummary is the compact constraint picture written back to memory.
func constraintsSummary(c Constraints) string {
	return fmt.Sprintf("exercise safety %s; food access %s; time %s; financial %s",
		c.ExerciseSafety, c.FoodAccess, c.TimeConstraints, c.FinancialBand)
}

// planSummary is the compact form written back to memory for later recall.
func planSummary(plan HabitPlan) string {
	actions := make([]string, 0, len(plan.Habits))
	for _, habit := range plan.Habits {
		actions = append(actions, fmt.Sprintf("%s %s %s", habit.Action, habit.Frequency, habit.Trigger))
	}
	return fmt.Sprintf("%d-week plan focusing on %s: %s",
		plan.DurationWeeks,
		strings.Join(plan.FocusAreas, ", "),
		strings.Join(actions, "; "))
}
