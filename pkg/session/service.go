// Package session drives conversations end to end: it owns the per-session
// state machines, routes user turns through the tiered extractor and the
// question generator, and hands finalized profiles to the reasoning
// pipeline. One session is processed by a single worker at a time.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/healthbridge-ai/healthbridge/pkg/agents"
	"github.com/healthbridge-ai/healthbridge/pkg/catalog"
	"github.com/healthbridge-ai/healthbridge/pkg/db"
	"github.com/healthbridge-ai/healthbridge/pkg/helpers"
	"github.com/healthbridge-ai/healthbridge/pkg/intake"
	"github.com/healthbridge-ai/healthbridge/pkg/memory"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionComplete = errors.New("session already complete")
)

const (
	subjectChatPrefix = "chat."
	subjectPlanPrefix = "plans."
)

// Evaluator is the reasoning pipeline surface. *agents.Orchestrator
// satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, userID string, profile *intake.Profile, signals []intake.Signal, latestInput string) (*agents.Output, error)
	Answer(ctx context.Context, userID, question string) (*agents.Output, error)
}

// Recaller is the slice of the memory service the session layer needs.
type Recaller interface {
	Recent(ctx context.Context, userID string, typ memory.RecordType, limit int) ([]memory.Record, error)
}

type Config struct {
	Catalog   *catalog.Catalog
	Extractor *intake.TieredExtractor
	Questions *intake.QuestionGenerator
	Detector  *intake.Detector
	Evaluator Evaluator
	Memory    Recaller
	Store     *db.Store // optional; nil disables persistence
	Nats      *nats.Conn
	Logger    *log.Logger
}

type Service struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*activeSession
}

// activeSession serializes turns: the protocol is sequential per session,
// the mutex just enforces it against misbehaving clients.
type activeSession struct {
	mu    sync.Mutex
	state *intake.State
}

func NewService(cfg Config) *Service {
	return &Service{cfg: cfg, sessions: make(map[string]*activeSession)}
}

// TurnResult is what one user turn (or session creation) produced.
type TurnResult struct {
	SessionID      string          `json:"sessionId"`
	Reply          string          `json:"reply"`
	Agent          string          `json:"agent"`
	Phase          intake.Phase    `json:"phase"`
	AcceptedFields []string        `json:"acceptedFields,omitempty"`
	Profile        *intake.Profile `json:"profile,omitempty"`
	Evaluation     *agents.Output  `json:"evaluation,omitempty"`
}

// Create opens a session and returns the welcome message. Follow-up
// sessions greet the user with the habits from their last plan.
func (s *Service) Create(ctx context.Context, userID string, mode intake.Mode) (*TurnResult, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	if mode == "" {
		mode = intake.ModeIntake
	}

	id := uuid.New().String()
	state := intake.NewState(id, userID, mode, s.cfg.Catalog)

	var habits []string
	if mode == intake.ModeFollowup && s.cfg.Memory != nil {
		if recs, err := s.cfg.Memory.Recent(ctx, userID, memory.TypeHabitPlan, 1); err == nil && len(recs) > 0 {
			habits = splitPlanSummary(recs[0].Text)
		}
	}
	welcome, field := s.cfg.Questions.Welcome(mode, habits)
	state.AddAssistantTurn(welcome, field)

	s.mu.Lock()
	s.sessions[id] = &activeSession{state: state}
	s.mu.Unlock()

	if s.cfg.Store != nil {
		now := time.Now().UTC()
		err := s.cfg.Store.CreateSession(ctx, db.SessionRecord{
			ID: id, UserID: userID, Mode: string(mode), Phase: string(state.Phase()),
			CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			return nil, errors.Wrap(err, "persisting session")
		}
	}
	s.persistTurn(ctx, id, 0, "assistant", welcome, field)
	s.publish(subjectChatPrefix+id, map[string]string{"role": "assistant", "text": welcome})

	return &TurnResult{SessionID: id, Reply: welcome, Agent: "collector", Phase: state.Phase()}, nil
}

// PostTurn processes one user message and returns the assistant's reply.
func (s *Service) PostTurn(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	s.mu.Lock()
	active, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	active.mu.Lock()
	defer active.mu.Unlock()
	state := active.state
	if state.Phase() == intake.PhaseComplete {
		return nil, ErrSessionComplete
	}

	contextField := state.LastQuestionField()
	turnIdx := state.AddUserTurn(text)
	s.persistTurn(ctx, sessionID, turnIdx, "user", text, "")
	s.publish(subjectChatPrefix+sessionID, map[string]string{"role": "user", "text": text})

	result := s.cfg.Extractor.Extract(ctx, text, contextField, state.RemainingFields())
	accepted := state.Apply(result, turnIdx)
	if state.Mode != intake.ModeIntake {
		if _, found := result.Fields[contextField]; !found {
			state.RecordAnswer(contextField, text, turnIdx)
		}
	}

	res := &TurnResult{SessionID: sessionID, Phase: state.Phase(), AcceptedFields: accepted}

	// Urgent symptoms interrupt whatever the conversation was doing.
	if len(result.UrgentSymptoms) > 0 {
		reply, _ := s.cfg.Questions.Next(state)
		s.sayAssistant(ctx, state, reply, "")
		res.Reply, res.Agent, res.Phase, res.Profile = reply, "safety", state.Phase(), state.Snapshot()
		return res, nil
	}

	switch state.Mode {
	case intake.ModeGeneral:
		if state.GeneralReady() {
			return s.finishGeneral(ctx, state, res)
		}
	case intake.ModeFollowup:
		if state.FollowupReady() {
			return s.finishPipeline(ctx, state, res, text)
		}
	default:
		if state.Phase() == intake.PhaseReady {
			return s.finishPipeline(ctx, state, res, text)
		}
	}

	reply, field := s.cfg.Questions.Next(state)
	if reply == "" {
		// Every askable field is resolved or exhausted.
		state.ForceComplete()
		return s.finishPipeline(ctx, state, res, text)
	}
	s.sayAssistant(ctx, state, reply, field)
	res.Reply, res.Agent, res.Phase, res.Profile = reply, "collector", state.Phase(), state.Snapshot()
	return res, nil
}

func (s *Service) finishPipeline(ctx context.Context, state *intake.State, res *TurnResult, latest string) (*TurnResult, error) {
	profile := state.Finalize()
	signals := s.cfg.Detector.AnalyzeSession(state.RecentUserMessages(len(state.Turns())), nil)

	out, err := s.cfg.Evaluator.Evaluate(ctx, state.UserID, profile, signals, latest)
	if err != nil {
		return nil, errors.Wrap(err, "running reasoning pipeline")
	}

	s.sayAssistant(ctx, state, out.Reply, "")
	s.saveProfile(ctx, profile)
	s.saveEvaluation(ctx, state, out)
	s.updatePhase(ctx, state)
	s.publish(subjectPlanPrefix+state.UserID, out)

	res.Reply, res.Agent, res.Phase, res.Evaluation = out.Reply, "planner", state.Phase(), out
	res.Profile = profile
	return res, nil
}

func (s *Service) finishGeneral(ctx context.Context, state *intake.State, res *TurnResult) (*TurnResult, error) {
	question := state.CombinedInput()
	out, err := s.cfg.Evaluator.Answer(ctx, state.UserID, question)
	if err != nil {
		return nil, errors.Wrap(err, "answering question")
	}

	state.Finalize()
	s.sayAssistant(ctx, state, out.Reply, "")
	s.saveEvaluation(ctx, state, out)
	s.updatePhase(ctx, state)

	res.Reply, res.Agent, res.Phase, res.Evaluation = out.Reply, "guide", state.Phase(), out
	res.Profile = state.Snapshot()
	return res, nil
}

// Turns returns the session transcript, from memory when the session is
// live and from storage otherwise.
func (s *Service) Turns(ctx context.Context, sessionID string) ([]intake.Turn, error) {
	s.mu.Lock()
	active, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		active.mu.Lock()
		defer active.mu.Unlock()
		return active.state.Turns(), nil
	}
	if s.cfg.Store == nil {
		return nil, ErrSessionNotFound
	}
	recs, err := s.cfg.Store.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrSessionNotFound
	}
	turns := make([]intake.Turn, len(recs))
	for i, rec := range recs {
		turns[i] = intake.Turn{Index: rec.Idx, Role: rec.Role, Text: rec.Text, Timestamp: rec.CreatedAt}
	}
	return turns, nil
}

// Profile loads a persisted profile snapshot.
func (s *Service) Profile(ctx context.Context, userID string) (*intake.Profile, error) {
	if s.cfg.Store == nil {
		return nil, nil
	}
	rec, err := s.cfg.Store.GetProfile(ctx, userID)
	if err != nil || rec == nil {
		return nil, err
	}
	profile := &intake.Profile{UserID: userID, Fields: map[string]intake.FieldSlot{}, Implied: map[string]string{}}
	if err := json.Unmarshal(rec.Fields, &profile.Fields); err != nil {
		return nil, errors.Wrap(err, "decoding profile fields")
	}
	if len(rec.Implied) > 0 {
		if err := json.Unmarshal(rec.Implied, &profile.Implied); err != nil {
			return nil, errors.Wrap(err, "decoding implied fields")
		}
	}
	return profile, nil
}

// SaveProfile validates and stores a caller-provided profile.
func (s *Service) SaveProfile(ctx context.Context, profile *intake.Profile) error {
	for name, slot := range profile.Fields {
		if _, known := s.cfg.Catalog.Field(name); !known {
			continue
		}
		normalized, err := s.cfg.Catalog.Validate(name, slot.Value)
		if err != nil {
			return errors.Wrapf(err, "field %s", name)
		}
		slot.Value = normalized
		profile.Fields[name] = slot
	}
	s.saveProfile(ctx, profile)
	return nil
}

func (s *Service) sayAssistant(ctx context.Context, state *intake.State, reply, field string) {
	state.AddAssistantTurn(reply, field)
	idx := len(state.Turns()) - 1
	s.persistTurn(ctx, state.SessionID, idx, "assistant", reply, field)
	s.publish(subjectChatPrefix+state.SessionID, map[string]string{"role": "assistant", "text": reply})
}

func (s *Service) persistTurn(ctx context.Context, sessionID string, idx int, role, text, field string) {
	if s.cfg.Store == nil {
		return
	}
	err := s.cfg.Store.AppendTurn(ctx, db.TurnRecord{
		ID: uuid.New().String(), SessionID: sessionID, Idx: idx,
		Role: role, Text: text, QuestionField: field, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.cfg.Logger.Warn("turn persistence failed", "session", sessionID, "error", err)
	}
}

func (s *Service) saveProfile(ctx context.Context, profile *intake.Profile) {
	if s.cfg.Store == nil {
		return
	}
	fields, err := json.Marshal(profile.Fields)
	if err != nil {
		s.cfg.Logger.Warn("profile encoding failed", "user", profile.UserID, "error", err)
		return
	}
	implied, err := json.Marshal(profile.Implied)
	if err != nil {
		implied = []byte(`{}`)
	}
	err = s.cfg.Store.SaveProfile(ctx, db.ProfileRecord{
		UserID: profile.UserID, Fields: fields, Implied: implied, UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.cfg.Logger.Warn("profile persistence failed", "user", profile.UserID, "error", err)
	}
}

func (s *Service) saveEvaluation(ctx context.Context, state *intake.State, out *agents.Output) {
	if s.cfg.Store == nil {
		return
	}
	payload, err := json.Marshal(out)
	if err != nil {
		s.cfg.Logger.Warn("evaluation encoding failed", "session", state.SessionID, "error", err)
		return
	}
	err = s.cfg.Store.SaveEvaluation(ctx, db.EvaluationRecord{
		ID: uuid.New().String(), SessionID: state.SessionID, UserID: state.UserID,
		Output: payload, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.cfg.Logger.Warn("evaluation persistence failed", "session", state.SessionID, "error", err)
	}
}

func (s *Service) updatePhase(ctx context.Context, state *intake.State) {
	if s.cfg.Store == nil {
		return
	}
	err := s.cfg.Store.UpdateSessionPhase(ctx, state.SessionID, string(state.Mode), string(state.Phase()))
	if err != nil {
		s.cfg.Logger.Warn("session phase persistence failed", "session", state.SessionID, "error", err)
	}
}

func (s *Service) publish(subject string, payload any) {
	if s.cfg.Nats == nil {
		return
	}
	if err := helpers.NatsPublish(s.cfg.Nats, subject, payload); err != nil {
		s.cfg.Logger.Warn("nats publish failed", "subject", subject, "error", err)
	}
}

// splitPlanSummary recovers the habit list from a stored plan summary of the
// form "4-week plan focusing on X: habit a; habit b".
func splitPlanSummary(summary string) []string {
	_, rest, found := strings.Cut(summary, ": ")
	if !found {
		return nil
	}
	parts := strings.Split(rest, "; ")
	habits := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			habits = append(habits, p)
		}
	}
	return habits
}
