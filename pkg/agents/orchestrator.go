package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/healthbridge-ai/healthbridge/pkg/ai"
	"github.com/healthbridge-ai/healthbridge/pkg/intake"
	"github.com/healthbridge-ai/healthbridge/pkg/memory"
	"github.com/healthbridge-ai/healthbridge/pkg/prompts"
	"github.com/healthbridge-ai/healthbridge/pkg/retrieval"
)

// GuidelineRetriever is the retrieval surface the pipeline consumes.
// *retrieval.Retriever satisfies it.
type GuidelineRetriever interface {
	Retrieve(ctx context.Context, query string, k, maxRewrites int) ([]retrieval.Candidate, error)
}

// MemoryAccess is the memory surface the pipeline consumes. *memory.Service
// satisfies it.
type MemoryAccess interface {
	Recall(ctx context.Context, userID string, typ memory.RecordType, query string, k int) ([]memory.Record, error)
	Write(ctx context.Context, userID string, typ memory.RecordType, text string, opts ...memory.WriteOption) (memory.Record, error)
}

// Orchestrator runs the four-stage pipeline over a finalized profile. Risk
// and constraints are independent and run concurrently; the habit plan waits
// for both; the safety review runs last and its verdict is authoritative.
type Orchestrator struct {
	llm          ai.Completion
	model        string
	retriever    GuidelineRetriever
	memory       MemoryAccess
	logger       *log.Logger
	stageTimeout time.Duration
}

func NewOrchestrator(llm ai.Completion, model string, retriever GuidelineRetriever, mem MemoryAccess, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		llm:          llm,
		model:        model,
		retriever:    retriever,
		memory:       mem,
		logger:       logger,
		stageTimeout: defaultStageTimeout,
	}
}

// Evaluate runs the full pipeline for one finalized profile. A single stage
// failing degrades that stage only; the only fatal path is the shared
// stores being unreachable before any stage can run.
func (o *Orchestrator) Evaluate(ctx context.Context, userID string, profile *intake.Profile, signals []intake.Signal, latestInput string) (*Output, error) {
	profileText := renderProfile(profile)

	recalled, err := o.memory.Recall(ctx, userID, "", profileText, 5)
	if err != nil {
		return nil, errors.Wrap(err, "recalling user memories")
	}
	memoryText := renderMemories(recalled)
	memoryIDs := make([]string, 0, len(recalled))
	for _, rec := range recalled {
		memoryIDs = append(memoryIDs, rec.ID)
	}

	guidelines, err := o.retriever.Retrieve(ctx, riskQuery(profile), 5, 2)
	if err != nil && !errors.Is(err, retrieval.ErrRetrievalExhausted) {
		return nil, errors.Wrap(err, "retrieving guidelines")
	}
	if errors.Is(err, retrieval.ErrRetrievalExhausted) {
		o.logger.Warn("guideline retrieval exhausted, proceeding with best-effort context", "user", userID)
	}
	guidelineText, sources := renderCandidates(guidelines)

	out := &Output{}

	// Risk and constraints only depend on the profile, retrieval context,
	// and recalled memory. Fork here, join before the plan stage.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.RiskMeta = o.runRiskStage(ctx, &out.Risk, profileText, guidelineText, memoryText, sources, memoryIDs)
	}()
	go func() {
		defer wg.Done()
		out.ConstraintsMeta = o.runConstraintsStage(ctx, &out.Constraints, profileText, latestInput, memoryText, memoryIDs)
	}()
	wg.Wait()

	out.PlanMeta = o.runPlanStage(ctx, &out.Plan, out.Risk, out.Constraints, memoryText, signals, sources, memoryIDs)
	out.RawReply = renderReply(out.Risk, out.Plan)

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
		o.logger.Info("safety review replaced outgoing reply",
			"user", userID, "issues", out.Safety.FlaggedIssues, "status", out.SafetyMeta.Status)
	}

	o.writeBack(ctx, userID, out, signals)
	return out, nil
}

func (o *Orchestrator) runRiskStage(ctx context.Context, risk *RiskAssessment, profileText, guidelineText, memoryText string, sources, memoryIDs []string) StageMeta {
	status := o.runStage(ctx, StageRisk, func(strict bool) (string, error) {
		return prompts.BuildRiskAssessmentPrompt(prompts.RiskAssessmentPrompt{
			Profile:    profileText,
			Guidelines: guidelineText,
			Memories:   memoryText,
			Strict:     strict,
		})
	}, risk, func() error {
		if !validRiskBand(risk.HypertensionRisk) || !validRiskBand(risk.DiabetesRisk) {
			return fmt.Errorf("risk bands %q/%q out of range", risk.HypertensionRisk, risk.DiabetesRisk)
		}
		return nil
	})
	if status == StatusDegraded {
		*risk = defaultRiskAssessment()
	}
	return StageMeta{Name: StageRisk, Status: status, Sources: sources, MemoryIDs: memoryIDs}
}

func (o *Orchestrator) runConstraintsStage(ctx context.Context, constraints *Constraints, profileText, latestInput, memoryText string, memoryIDs []string) StageMeta {
	status := o.runStage(ctx, StageConstraints, func(strict bool) (string, error) {
		return prompts.BuildConstraintsPrompt(prompts.ConstraintsPrompt{
			Profile:   profileText,
			Utterance: latestInput,
			Memories:  memoryText,
			Strict:    strict,
		})
	}, constraints, nil)
	if status == StatusDegraded {
		*constraints = defaultConstraints()
	}
	return StageMeta{Name: StageConstraints, Status: status, MemoryIDs: memoryIDs}
}

func (o *Orchestrator) runPlanStage(ctx context.Context, plan *HabitPlan, risk RiskAssessment, constraints Constraints, memoryText string, signals []intake.Signal, sources, memoryIDs []string) StageMeta {
	riskJSON, _ := json.Marshal(risk)
	constraintsJSON, _ := json.Marshal(constraints)
	status := o.runStage(ctx, StagePlan, func(strict bool) (string, error) {
		return prompts.BuildHabitPlanPrompt(prompts.HabitPlanPrompt{
			Risk:        string(riskJSON),
			Constraints: string(constraintsJSON),
			Memories:    memoryText,
			Signals:     renderSignals(signals),
			Strict:      strict,
		})
	}, plan, func() error {
		if len(plan.Habits) == 0 {
			return fmt.Errorf("plan has no habits")
		}
		return nil
	})
	if status == StatusDegraded {
		*plan = defaultHabitPlan()
	}
	if plan.DurationWeeks == 0 {
		plan.DurationWeeks = 4
	}
	return StageMeta{Name: StagePlan, Status: status, Sources: sources, MemoryIDs: memoryIDs}
}

func (o *Orchestrator) runSafetyStage(ctx context.Context, message string) (StageMeta, SafetyReview) {
	// The reviewer gets its own retrieval pass for red-flag guidance,
	// independent of what the earlier stages saw.
	boundary, err := o.retriever.Retrieve(ctx, "red flags warning signs emergency symptoms hypertension diabetes", 3, 1)
	if err != nil && !errors.Is(err, retrieval.ErrRetrievalExhausted) {
		o.logger.Warn("safety boundary retrieval failed", "error", err)
	}
	boundaryText, sources := renderCandidates(boundary)

	var review SafetyReview
	status := o.runStage(ctx, StageSafety, func(strict bool) (string, error) {
		return prompts.BuildSafetyReviewPrompt(prompts.SafetyReviewPrompt{
			Message:    message,
			Guidelines: boundaryText,
			Strict:     strict,
		})
	}, &review, nil)
	if status == StatusDegraded {
		review = defaultSafetyReview()
	}
	return StageMeta{Name: StageSafety, Status: status, Sources: sources}, review
}

// writeBack persists the evaluation so later sessions can recall it. Failure
// here loses personalization, not the reply, so it only warns.
func (o *Orchestrator) writeBack(ctx context.Context, userID string, out *Output, signals []intake.Signal) {
	// Degraded stages hold placeholder defaults; writing those back would
	// teach the memory things nobody said.
	if out.RiskMeta.Status != StatusDegraded {
		if _, err := o.memory.Write(ctx, userID, memory.TypeProfile, riskSummary(out.Risk), memory.WithSource("orchestrator")); err != nil {
			o.logger.Warn("risk write-back failed", "user", userID, "error", err)
		}
	}
	if out.ConstraintsMeta.Status != StatusDegraded {
		if _, err := o.memory.Write(ctx, userID, memory.TypeConstraint, constraintsSummary(out.Constraints), memory.WithSource("orchestrator")); err != nil {
			o.logger.Warn("constraints write-back failed", "user", userID, "error", err)
		}
	}
	if out.PlanMeta.Status != StatusDegraded {
		if _, err := o.memory.Write(ctx, userID, memory.TypeHabitPlan, planSummary(out.Plan), memory.WithSource("orchestrator")); err != nil {
			o.logger.Warn("habit plan write-back failed", "user", userID, "error", err)
		}
	}
	for _, sig := range signals {
		if _, err := o.memory.Write(ctx, userID, memory.TypeOutcome, sig.Description, memory.WithSource("pattern_detector")); err != nil {
			o.logger.Warn("signal write-back failed", "user", userID, "error", err)
		}
	}
}

func riskQuery(profile *intake.Profile) string {
	terms := []string{"hypertension", "diabetes", "risk", "factors"}
	for _, field := range []string{"smoking", "activity", "diet", "conditions", "family_history"} {
		if v := profile.Value(field); v != "" && v != "none" && v != "no" {
			terms = append(terms, v)
		}
	}
	return strings.Join(terms, " ")
}

func renderProfile(profile *intake.Profile) string {
	if profile == nil {
		return ""
	}
	names := make([]string, 0, len(profile.Fields))
	for name := range profile.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, profile.Fields[name].Value)
	}
	for hint, value := range profile.Implied {
		fmt.Fprintf(&b, "%s (implied): %s\n", hint, value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderMemories(records []memory.Record) string {
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&b, "- [%s] %s\n", rec.Type, rec.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCandidates(candidates []retrieval.Candidate) (string, []string) {
	if len(candidates) == 0 {
		return "", nil
	}
	var b strings.Builder
	sources := make([]string, 0, len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s\n", c.Text)
		sources = append(sources, c.SourceDocID)
	}
	return strings.TrimRight(b.String(), "\n"), sources
}

func renderSignals(signals []intake.Signal) string {
	if len(signals) == 0 {
		return ""
	}
	var b strings.Builder
	for _, sig := range signals {
		fmt.Fprintf(&b, "- %s (%s)", sig.Description, sig.Severity)
		if sig.Recommendation != "" {
			fmt.Fprintf(&b, "; consider: %s", sig.Recommendation)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
