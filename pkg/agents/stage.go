package agents

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/pkg/errors"
)

const defaultStageTimeout = 45 * time.Second

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSON pulls the JSON object out of a completion that may be wrapped
// in markdown fences or prose.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = regexp.MustCompile("```(json)?\n?").ReplaceAllString(text, "")
		text = strings.TrimRight(text, "`")
	}
	if m := jsonObjectRe.FindString(text); m != "" {
		return m
	}
	return text
}

// runStage executes one pipeline stage: call the model, parse the JSON
// output into out, and on any failure retry once with the stricter prompt.
// Both attempts failing reports StatusDegraded; the caller installs the
// stage default. Validation runs after parsing so schema-shaped but invalid
// output also triggers the retry.
func (o *Orchestrator) runStage(ctx context.Context, name StageName, buildPrompt func(strict bool) (string, error), out any, validate func() error) StageStatus {
	for attempt := 0; attempt < 2; attempt++ {
		strict := attempt > 0
		err := o.callStage(ctx, name, strict, buildPrompt, out, validate)
		if err == nil {
			if strict {
				return StatusRetried
			}
			return StatusOK
		}
		o.logger.Warn("stage attempt failed", "stage", name, "strict", strict, "error", err)
	}
	return StatusDegraded
}

func (o *Orchestrator) callStage(ctx context.Context, name StageName, strict bool, buildPrompt func(strict bool) (string, error), out any, validate func() error) error {
	prompt, err := buildPrompt(strict)
	if err != nil {
		return errors.Wrap(err, "building prompt")
	}

	ctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(stageSystemPrompt),
		openai.UserMessage(prompt),
	}
	completion, err := o.llm.Completions(ctx, messages, o.model)
	if err != nil {
		return errors.Wrapf(err, "%s completion", name)
	}

	if err := json.Unmarshal([]byte(extractJSON(completion.Content)), out); err != nil {
		return errors.Wrapf(err, "%s output did not parse", name)
	}
	if validate != nil {
		if err := validate(); err != nil {
			return errors.Wrapf(err, "%s output rejected", name)
		}
	}
	return nil
}

const stageSystemPrompt = "You are one stage of a preventive-health reasoning pipeline " +
	"for hypertension and type 2 diabetes. You never diagnose and never give " +
	"medication or dosage advice. You answer with exactly one JSON object " +
	"matching the schema in the task, with no surrounding text."

func validRiskBand(b RiskBand) bool {
	switch b {
	case RiskLow, RiskModerate, RiskHigh:
		return true
	}
	return false
}
