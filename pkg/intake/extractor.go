package intake

import (
	"context"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/healthbridge-ai/healthbridge/pkg/catalog"
)

// Tier extracts field candidates from a single utterance. contextField is
// the field the previous question asked about, "" when unknown. remaining
// scopes extraction to unresolved catalog fields.
type Tier interface {
	Name() string
	Extract(ctx context.Context, utterance, contextField string, remaining []catalog.Field) (ExtractionResult, error)
}

const (
	// Tier 1 results at or above this confidence skip the LLM entirely.
	semanticShortCircuit = 0.7
)

// TieredExtractor runs semantic, LLM, and regex tiers in strict order,
// stopping at the first tier that produces a confident result. Simple
// inputs never reach the LLM tier.
type TieredExtractor struct {
	semantic Tier
	llm      Tier
	regex    Tier
	logger   *log.Logger
}

func NewTieredExtractor(semantic, llm, regex Tier, logger *log.Logger) *TieredExtractor {
	return &TieredExtractor{semantic: semantic, llm: llm, regex: regex, logger: logger}
}

// Extract routes the utterance through the tiers. A tier failure is logged
// and falls through to the next tier; the turn itself never fails.
func (e *TieredExtractor) Extract(ctx context.Context, utterance, contextField string, remaining []catalog.Field) ExtractionResult {
	urgent := detectUrgentSymptoms(utterance)
	simple := isSimpleInput(utterance)

	if e.semantic != nil {
		result, err := e.semantic.Extract(ctx, utterance, contextField, remaining)
		if err != nil {
			e.logger.Debug("semantic tier failed", "error", err)
		} else if len(result.Fields) > 0 {
			maxConf := 0.0
			for _, c := range result.Fields {
				if c.Confidence > maxConf {
					maxConf = c.Confidence
				}
			}
			if maxConf >= semanticShortCircuit || simple {
				result.UrgentSymptoms = urgent
				return result
			}
		}
	}

	if e.llm != nil && !simple {
		result, err := e.llm.Extract(ctx, utterance, contextField, remaining)
		if err != nil {
			e.logger.Warn("llm tier failed, falling back to regex", "error", err)
		} else if len(result.Fields) > 0 {
			result.UrgentSymptoms = urgent
			return result
		}
	}

	result := newExtractionResult()
	if e.regex != nil {
		if r, err := e.regex.Extract(ctx, utterance, contextField, remaining); err == nil {
			result = r
		}
	}
	result.UrgentSymptoms = urgent
	return result
}

var simpleInputRes = compileAll([]string{
	`^(yes|no|yeah|yep|nope|nah|none|male|female|m|f)$`,
	`^\d{1,3}$`,
	`^\d{1,3}\s*-\s*\d{1,3}$`,
	`^i'?m\s+\d{1,3}$`,
	`^(i\s+)?(don'?t|never|no)\s+(smoke|drink)\s*\w*$`,
	`^(i\s+)?(have\s+)?(never)\s+(smoked|drank|touched)`,
	`^(i\s+)?(smoke|drink)\s*(occasionally|sometimes|daily|regularly)?$`,
	`^(sedentary|active|moderate|light)$`,
	`^no\s*(one|body|history|issues?|problems?|conditions?)$`,
	`^(former|ex|quit|stopped)\s`,
	`^(healthy|fine|good|okay|ok)$`,
	`^not?\s*(really|much|often|at all)$`,
})

// isSimpleInput decides whether an utterance is canonical enough that the
// non-LLM tiers must handle it alone.
func isSimpleInput(utterance string) bool {
	msg := strings.ToLower(strings.TrimSpace(utterance))
	words := len(strings.Fields(msg))
	if words <= 3 {
		return true
	}
	for _, re := range simpleInputRes {
		if re.MatchString(msg) {
			return true
		}
	}
	return words <= 6 && !strings.Contains(msg, ",") && !strings.Contains(msg, " and ")
}

var urgentPatterns = []struct {
	re      *regexp.Regexp
	symptom string
}{
	{regexp.MustCompile(`\b(chest\s*pain|chest\s*pressure)`), "chest pain"},
	{regexp.MustCompile(`\b(can'?t\s*breathe|difficulty\s*breathing)`), "breathing difficulty"},
	{regexp.MustCompile(`\bsevere\s*headache`), "severe headache"},
	{regexp.MustCompile(`\bblurred?\s*vision`), "vision problems"},
	{regexp.MustCompile(`\b(faint|passed?\s*out)`), "fainting"},
	{regexp.MustCompile(`\b(numb|weak).{0,20}(arm|leg|face)`), "numbness/weakness"},
	{regexp.MustCompile(`\bslurred?\s*speech`), "speech problems"},
}

func detectUrgentSymptoms(utterance string) []string {
	msg := strings.ToLower(utterance)
	var out []string
	for _, p := range urgentPatterns {
		if p.re.MatchString(msg) {
			out = append(out, p.symptom)
		}
	}
	return out
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}
