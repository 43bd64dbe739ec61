package intake

import (
	"strconv"
	"strings"
	"time"

	"github.com/healthbridge-ai/healthbridge/pkg/catalog"
)

// Phase is the dialogue phase of a session.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseReady      Phase = "ready"
	PhaseComplete   Phase = "complete"
	PhaseFollowup   Phase = "followup"
	PhaseGeneral    Phase = "general"
)

// Mode selects the conversation protocol for a session.
type Mode string

const (
	ModeIntake   Mode = "intake"
	ModeFollowup Mode = "follow_up"
	ModeGeneral  Mode = "general"
)

const (
	// Safety valve: intake never asks past this many user turns.
	intakeMaxTurns = 12

	followupMinAnswers = 3
	followupMaxTurns   = 7

	generalMinLength = 15
)

// forceWords end collection immediately when a turn consists of one of them.
var forceWords = map[string]bool{
	"skip": true,
	"done": true,
}

// State tracks one session's dialogue phase, collected fields, and turn
// history. A State is owned by a single session; turns are strictly
// sequential, so methods are not safe for concurrent use.
type State struct {
	SessionID string
	UserID    string
	Mode      Mode

	phase   Phase
	turns   []Turn
	slots   map[string]*FieldSlot
	implied map[string]string

	urgentFlags   []string
	urgentPending []string
	forced        bool

	lastQuestionField string
	askAttempts       map[string]int

	catalog   *catalog.Catalog
	finalized *Profile

	createdAt time.Time
}

func NewState(sessionID, userID string, mode Mode, cat *catalog.Catalog) *State {
	phase := PhaseCollecting
	switch mode {
	case ModeFollowup:
		phase = PhaseFollowup
	case ModeGeneral:
		phase = PhaseGeneral
	}
	return &State{
		SessionID:   sessionID,
		UserID:      userID,
		Mode:        mode,
		phase:       phase,
		slots:       map[string]*FieldSlot{},
		implied:     map[string]string{},
		askAttempts: map[string]int{},
		catalog:     cat,
		createdAt:   time.Now(),
	}
}

func (s *State) Phase() Phase          { return s.phase }
func (s *State) CreatedAt() time.Time  { return s.createdAt }
func (s *State) Turns() []Turn         { return s.turns }
func (s *State) UrgentFlags() []string { return s.urgentFlags }

// UrgentPending returns the urgent symptoms detected in the latest user
// turn; the safety response interrupts the question flow for that turn only.
func (s *State) UrgentPending() []string { return s.urgentPending }
func (s *State) HasUrgent() bool       { return len(s.urgentFlags) > 0 }

// UserTurnCount counts user turns only; the intake cap is defined over these.
func (s *State) UserTurnCount() int {
	n := 0
	for _, t := range s.turns {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// LastQuestionField is the field the previous assistant question asked about.
func (s *State) LastQuestionField() string { return s.lastQuestionField }

// AddUserTurn appends a user message and returns its index.
func (s *State) AddUserTurn(text string) int {
	idx := len(s.turns)
	s.turns = append(s.turns, Turn{Index: idx, Role: RoleUser, Text: text, Timestamp: time.Now()})
	s.urgentPending = nil
	if forceWords[strings.ToLower(strings.TrimSpace(text))] {
		s.forced = true
	}
	return idx
}

// AddAssistantTurn appends an assistant message, recording which field it
// asked about (empty when it is not a question).
func (s *State) AddAssistantTurn(text, questionField string) {
	idx := len(s.turns)
	s.turns = append(s.turns, Turn{Index: idx, Role: RoleAssistant, Text: text, Timestamp: time.Now()})
	s.lastQuestionField = questionField
	if questionField != "" {
		s.askAttempts[questionField]++
	}
}

// Apply merges an extraction result into the collected slots. Candidates
// failing catalog validation are rejected and their slot stays unresolved.
// Returns the fields that were accepted this turn.
func (s *State) Apply(result ExtractionResult, turn int) []string {
	var accepted []string
	for name, cand := range result.Fields {
		_, known := s.catalog.Field(name)
		if !known {
			// Followup sessions collect free-form answers outside the catalog.
			if s.Mode == ModeIntake {
				continue
			}
		} else {
			normalized, verr := s.catalog.Validate(name, cand.Value)
			if verr != nil {
				continue
			}
			cand.Value = normalized
		}
		slot, ok := s.slots[name]
		if !ok {
			slot = &FieldSlot{Field: name, Source: SourceUnset}
			s.slots[name] = slot
		}
		if slot.merge(cand, turn, s.catalog.Epsilon) {
			accepted = append(accepted, name)
		}
	}
	for k, v := range result.Implied {
		s.implied[k] = v
	}
	for _, symptom := range result.UrgentSymptoms {
		s.addUrgentFlag(symptom)
	}
	s.urgentPending = result.UrgentSymptoms
	s.advance()
	return accepted
}

func (s *State) addUrgentFlag(symptom string) {
	for _, f := range s.urgentFlags {
		if f == symptom {
			return
		}
	}
	s.urgentFlags = append(s.urgentFlags, symptom)
}

// RecordAnswer stores a free-form answer for the field the last question
// asked about. Follow-up and general sessions collect narrative answers that
// no extraction tier maps to catalog fields; the raw text is the value.
func (s *State) RecordAnswer(field, text string, turn int) {
	if field == "" || strings.TrimSpace(text) == "" {
		return
	}
	slot, ok := s.slots[field]
	if !ok {
		slot = &FieldSlot{Field: field, Source: SourceUnset}
		s.slots[field] = slot
	}
	slot.merge(FieldCandidate{Value: strings.TrimSpace(text), Confidence: 0.9, Source: SourceRegex}, turn, s.catalog.Epsilon)
	s.advance()
}

// ForceComplete ends collection regardless of missing fields.
func (s *State) ForceComplete() {
	s.forced = true
	s.advance()
}

// advance re-evaluates the phase after a merge. Only the collecting phase
// transitions here; ready -> complete happens in Finalize.
func (s *State) advance() {
	if s.phase != PhaseCollecting {
		return
	}
	if s.forced || s.UserTurnCount() >= intakeMaxTurns || len(s.MissingRequired()) == 0 {
		s.phase = PhaseReady
	}
}

// Slot returns the collected slot for a field, or nil.
func (s *State) Slot(name string) *FieldSlot {
	return s.slots[name]
}

// Resolved reports whether a field clears the resolution threshold.
func (s *State) Resolved(name string) bool {
	return s.slots[name].Resolved(s.catalog.ResolutionThreshold)
}

// AskAttempts is how many times a field has been asked about.
func (s *State) AskAttempts(name string) int { return s.askAttempts[name] }

// MissingRequired lists required catalog fields not yet resolved, in
// priority order, honoring age-based skips.
func (s *State) MissingRequired() []string {
	var missing []string
	age := s.ageValue()
	for _, f := range s.catalog.Required() {
		if s.Resolved(f.Name) {
			continue
		}
		if f.SkipIfAgeOver > 0 && age > f.SkipIfAgeOver {
			continue
		}
		missing = append(missing, f.Name)
	}
	return missing
}

// MissingAll lists every unresolved catalog field in priority order.
func (s *State) MissingAll() []string {
	var missing []string
	age := s.ageValue()
	for _, f := range s.catalog.All() {
		if s.Resolved(f.Name) {
			continue
		}
		if f.SkipIfAgeOver > 0 && age > f.SkipIfAgeOver {
			continue
		}
		missing = append(missing, f.Name)
	}
	return missing
}

// RemainingFields returns the catalog definitions of unresolved fields,
// used to scope what the extraction tiers look for.
func (s *State) RemainingFields() []catalog.Field {
	var out []catalog.Field
	for _, name := range s.MissingAll() {
		if f, ok := s.catalog.Field(name); ok {
			out = append(out, *f)
		}
	}
	return out
}

func (s *State) ageValue() int {
	slot := s.slots["age"]
	if slot == nil || slot.Source == SourceUnset {
		return 0
	}
	n, err := strconv.Atoi(slot.Value)
	if err != nil {
		return 0
	}
	return n
}

// RecentUserMessages returns up to max most recent user messages.
func (s *State) RecentUserMessages(max int) []string {
	var msgs []string
	for _, t := range s.turns {
		if t.Role == RoleUser {
			msgs = append(msgs, t.Text)
		}
	}
	if len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	return msgs
}

// CombinedInput joins all user messages, used by followup and general modes.
func (s *State) CombinedInput() string {
	return strings.Join(s.RecentUserMessages(len(s.turns)), " ")
}

// FollowupReady applies the looser follow-up readiness rule.
func (s *State) FollowupReady() bool {
	if s.UserTurnCount() >= followupMaxTurns || s.forced {
		return true
	}
	answered := 0
	for _, slot := range s.slots {
		if slot.Source != SourceUnset {
			answered++
		}
	}
	if answered >= followupMinAnswers {
		return true
	}
	return len(strings.Fields(s.CombinedInput())) >= 20
}

// GeneralReady reports whether a general session has enough to answer.
func (s *State) GeneralReady() bool {
	combined := s.CombinedInput()
	return s.UserTurnCount() >= 2 ||
		generalTopicRe.MatchString(combined) ||
		generalQuestionRe.MatchString(combined) ||
		len(strings.TrimSpace(combined)) >= generalMinLength
}

// Finalize transitions ready -> complete and returns the finalized profile.
// Idempotent: repeated calls return the same profile without reprocessing.
func (s *State) Finalize() *Profile {
	if s.finalized != nil {
		return s.finalized
	}
	fields := make(map[string]FieldSlot, len(s.slots))
	for name, slot := range s.slots {
		fields[name] = *slot
	}
	implied := make(map[string]string, len(s.implied))
	for k, v := range s.implied {
		implied[k] = v
	}
	s.finalized = &Profile{UserID: s.UserID, Fields: fields, Implied: implied}
	if s.phase == PhaseReady || s.phase == PhaseCollecting {
		s.phase = PhaseComplete
	}
	return s.finalized
}

// Snapshot returns the profile as collected so far without finalizing.
func (s *State) Snapshot() *Profile {
	fields := make(map[string]FieldSlot, len(s.slots))
	for name, slot := range s.slots {
		fields[name] = *slot
	}
	implied := make(map[string]string, len(s.implied))
	for k, v := range s.implied {
		implied[k] = v
	}
	return &Profile{UserID: s.UserID, Fields: fields, Implied: implied}
}
