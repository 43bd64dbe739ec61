package intake

import (
	"fmt"
	"strings"

	"github.com/healthbridge-ai/healthbridge/pkg/catalog"
)

// maxAskAttempts bounds how many times a single field is asked about before
// the generator moves on.
const maxAskAttempts = 3

var acknowledgments = []string{
	"Thanks for sharing that!",
	"Got it, thank you.",
	"I've noted that.",
	"Thanks! That helps.",
	"Understood.",
	"Great, thanks.",
}

const urgentResponse = `**IMPORTANT**: You mentioned %s. These could be signs of a serious condition.

Please seek immediate medical attention:
- Go to your nearest emergency room, OR
- Call emergency services (911 / your local emergency number)

Do not wait to see if symptoms improve. Your health is the priority.

Once you've received medical care, we can continue with your health plan.`

var followupQuestions = []struct {
	field    string
	question string
}{
	{"habits_followed", "Which habits from your plan have you been able to follow?"},
	{"habits_struggled", "Have you stopped or struggled with any habits? Which ones and why?"},
	{"health_readings", "Have you had any recent health readings like blood pressure or weight?"},
	{"barriers", "Are you facing any challenges or barriers to following your plan?"},
	{"feelings", "How are you feeling overall, any symptoms or concerns?"},
}

// QuestionGenerator produces the next thing to ask, driven entirely by the
// field catalog: question text, ordering, and clarifications are data.
type QuestionGenerator struct {
	catalog  *catalog.Catalog
	ackIndex int
}

func NewQuestionGenerator(cat *catalog.Catalog) *QuestionGenerator {
	return &QuestionGenerator{catalog: cat}
}

// Next returns the next question and the field it asks about. Both are
// empty when nothing remains to ask.
func (g *QuestionGenerator) Next(state *State) (string, string) {
	if pending := state.UrgentPending(); len(pending) > 0 {
		return fmt.Sprintf(urgentResponse, strings.Join(pending, ", ")), ""
	}
	switch state.Mode {
	case ModeFollowup:
		return g.nextFollowup(state)
	case ModeGeneral:
		return g.nextGeneral(state)
	default:
		return g.nextIntake(state)
	}
}

func (g *QuestionGenerator) nextIntake(state *State) (string, string) {
	for _, name := range state.MissingRequired() {
		if q, ok := g.questionFor(state, name); ok {
			return g.withAcknowledgment(state, q), name
		}
	}
	// Required fields done or exhausted; sweep optional ones.
	for _, name := range state.MissingAll() {
		field, ok := g.catalog.Field(name)
		if !ok || field.Required {
			continue
		}
		if q, ok := g.questionFor(state, name); ok {
			return g.withAcknowledgment(state, q), name
		}
	}
	return "", ""
}

// questionFor picks the initial question or a clarification depending on
// how many times the field has already been asked. Past the attempt bound
// the field is skipped entirely, which breaks re-ask loops.
func (g *QuestionGenerator) questionFor(state *State, name string) (string, bool) {
	field, ok := g.catalog.Field(name)
	if !ok {
		return "", false
	}
	attempts := state.AskAttempts(name)
	if attempts >= maxAskAttempts {
		return "", false
	}
	if attempts == 0 {
		return field.Question, true
	}
	if len(field.Clarifications) > 0 {
		idx := attempts - 1
		if idx >= len(field.Clarifications) {
			idx = len(field.Clarifications) - 1
		}
		return field.Clarifications[idx], true
	}
	return field.Question, true
}

func (g *QuestionGenerator) withAcknowledgment(state *State, question string) string {
	if state.UserTurnCount() == 0 {
		return question
	}
	return g.acknowledgment() + "\n\n" + question
}

func (g *QuestionGenerator) acknowledgment() string {
	ack := acknowledgments[g.ackIndex%len(acknowledgments)]
	g.ackIndex++
	return ack
}

func (g *QuestionGenerator) nextFollowup(state *State) (string, string) {
	for _, fq := range followupQuestions {
		if slot := state.Slot(fq.field); slot != nil && slot.Source != SourceUnset {
			continue
		}
		if state.AskAttempts(fq.field) >= maxAskAttempts {
			continue
		}
		if state.UserTurnCount() > 0 {
			return g.acknowledgment() + "\n\n" + fq.question, fq.field
		}
		return fq.question, fq.field
	}
	return "", ""
}

func (g *QuestionGenerator) nextGeneral(state *State) (string, string) {
	if state.UserTurnCount() == 0 {
		return "Hi! I can help answer health questions about diet, exercise, " +
			"blood pressure, diabetes, and healthy habits.\n\n" +
			"What would you like to know? For example:\n" +
			"  - \"What foods should I avoid for high blood pressure?\"\n" +
			"  - \"How much exercise do I need per week?\"\n" +
			"  - \"What are warning signs of a stroke?\"", ""
	}
	return "Could you be more specific about what you'd like to know?\n" +
		"Try asking a question like \"How can I lower my blood pressure naturally?\"", ""
}

// Welcome returns the session-opening message and the field it asks about.
func (g *QuestionGenerator) Welcome(mode Mode, habits []string) (string, string) {
	switch mode {
	case ModeFollowup:
		if len(habits) > 0 {
			shown := habits
			if len(shown) > 4 {
				shown = shown[:4]
			}
			var sb strings.Builder
			sb.WriteString("Welcome back! Last time we set up these habits for you:\n")
			for _, h := range shown {
				fmt.Fprintf(&sb, "  - %s\n", h)
			}
			sb.WriteString("\nHow have things been going? Which habits have you been able to follow?")
			return sb.String(), "habits_followed"
		}
		return "Welcome back! Let's check in on your progress.\n\n" +
			"Which habits from your plan have you been able to follow?", "habits_followed"
	case ModeGeneral:
		return "Hi! I can help answer health questions about diet, exercise, " +
			"blood pressure, diabetes, and healthy habits.\n\nWhat would you like to know?", ""
	default:
		first := ""
		question := "How can I help you today?"
		if required := g.catalog.Required(); len(required) > 0 {
			first = required[0].Name
			question = required[0].Question
		}
		return "Welcome! I'm here to help assess your health profile and " +
			"create a personalized wellness plan.\n\nLet's start: " + question, first
	}
}
