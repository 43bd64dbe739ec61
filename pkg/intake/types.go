package intake

import (
	"time"
)

// Source identifies which extraction tier produced a field value.
type Source string

const (
	SourceSemantic Source = "semantic"
	SourceLLM      Source = "llm"
	SourceRegex    Source = "regex"
	SourceUnset    Source = "unset"
)

// tierRank orders sources by tier; lower rank wins an epsilon tie.
func tierRank(s Source) int {
	switch s {
	case SourceSemantic:
		return 0
	case SourceLLM:
		return 1
	case SourceRegex:
		return 2
	default:
		return 3
	}
}

// FieldSlot is one entry of the profile under construction.
type FieldSlot struct {
	Field      string   `json:"field"`
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	Source     Source   `json:"source"`
	Turns      []int    `json:"turns"`
}

// Resolved reports whether the slot clears the catalog's resolution threshold.
func (s *FieldSlot) Resolved(threshold float64) bool {
	return s != nil && s.Source != SourceUnset && s.Confidence >= threshold
}

// FieldCandidate is a single tier's proposal for a field value.
type FieldCandidate struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// ExtractionResult is the outcome of running the tiered extractor over one
// utterance. Values are already normalized to catalog form but not yet
// validated against the schema.
type ExtractionResult struct {
	Fields         map[string]FieldCandidate `json:"fields"`
	Implied        map[string]string         `json:"implied"`
	UrgentSymptoms []string                  `json:"urgentSymptoms"`
	Remainder      string                    `json:"remainder"`
}

func newExtractionResult() ExtractionResult {
	return ExtractionResult{
		Fields:  map[string]FieldCandidate{},
		Implied: map[string]string{},
	}
}

// merge folds a candidate into an existing slot. Higher confidence wins;
// confidences within epsilon keep the earlier-tier source.
func (s *FieldSlot) merge(c FieldCandidate, turn int, epsilon float64) bool {
	if s.Source == SourceUnset {
		s.apply(c, turn)
		return true
	}
	diff := c.Confidence - s.Confidence
	if diff > epsilon {
		s.apply(c, turn)
		return true
	}
	if diff >= -epsilon && tierRank(c.Source) < tierRank(s.Source) {
		s.apply(c, turn)
		return true
	}
	return false
}

func (s *FieldSlot) apply(c FieldCandidate, turn int) {
	s.Value = c.Value
	s.Confidence = c.Confidence
	s.Source = c.Source
	s.Turns = append(s.Turns, turn)
}

// Turn is one message in a session's ordered history.
type Turn struct {
	Index     int       `json:"index"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Profile is the finalized mapping of field name to slot.
type Profile struct {
	UserID  string               `json:"userId"`
	Fields  map[string]FieldSlot `json:"fields"`
	Implied map[string]string    `json:"implied"`
}

// Value returns the stored value for a field, or "" when absent.
func (p *Profile) Value(field string) string {
	if p == nil {
		return ""
	}
	return p.Fields[field].Value
}
