package agents

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/pkg/errors"

	"github.com/healthbridge-ai/healthbridge/pkg/prompts"
	"github.com/healthbridge-ai/healthbridge/pkg/retrieval"
)

// Answer handles general-question sessions: retrieve guideline context,
// produce an educational plain-text answer, and pass it through the same
// authoritative safety review the plan pipeline uses. The returned Output
// carries only the safety stage and the reply fields.
func (o *Orchestrator) Answer(ctx context.Context, userID, question string) (*Output, error) {
	recalled, err := o.memory.Recall(ctx, userID, "", question, 3)
	if err != nil {
		return nil, errors.Wrap(err, "recalling user memories")
	}

	guidelines, err := o.retriever.Retrieve(ctx, question, 5, 2)
	if err != nil && !errors.Is(err, retrieval.ErrRetrievalExhausted) {
		return nil, errors.Wrap(err, "retrieving guidelines")
	}
	guidelineText, _ := renderCandidates(guidelines)

	out := &Output{RawReply: o.generalAnswer(ctx, question, guidelineText, renderMemories(recalled))}

	out.SafetyMeta, out.Safety = o.runSafetyStage(ctx, out.RawReply)
	if out.Safety.IsSafe {
		out.Reply = out.RawReply
	} else {
		out.SafetyOverridden = true
		if out.Safety.RevisedResponse != "" {
			out.Reply = out.Safety.RevisedResponse
		} else {
			out.Reply = safeFallbackMessage
		}
	}
	return out, nil
}

func (o *Orchestrator) generalAnswer(ctx context.Context, question, guidelineText, memoryText string) string {
	prompt, err := prompts.BuildGeneralAnswerPrompt(prompts.GeneralAnswerPrompt{
		Question:   question,
		Guidelines: guidelineText,
		Memories:   memoryText,
	})
	if err != nil {
		o.logger.Warn("general answer prompt failed", "error", err)
		return safeFallbackMessage
	}

	ctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()
	completion, err := o.llm.Completions(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(answerSystemPrompt),
		openai.UserMessage(prompt),
	}, o.model)
	if err != nil || completion.Content == "" {
		o.logger.Warn("general answer completion failed", "error", err)
		return safeFallbackMessage
	}
	return completion.Content
}

const answerSystemPrompt = "You are a preventive-health educator answering general " +
	"questions about hypertension and type 2 diabetes. Ground every claim in the " +
	"provided guideline passages, never diagnose, never give medication or dosage " +
	"advice, and suggest seeing a health professional for personal concerns."
