package intake

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/healthbridge-ai/healthbridge/pkg/catalog"
)

// RegexTier is the last-resort extractor: fixed patterns over canonical
// formats. It has no dependencies and never errors.
type RegexTier struct{}

func NewRegexTier() *RegexTier { return &RegexTier{} }

func (t *RegexTier) Name() string { return "regex" }

var (
	maleRe   = regexp.MustCompile(`\b(male|man|boy|guy)\b`)
	femaleRe = regexp.MustCompile(`\b(female|woman|girl|lady)\b`)

	nonePatterns = compileAll([]string{
		`^\s*(no|none|nope|nah)\s*$`,
		`\b(none|no|not)\s*(that)?\s*(i|we)?\s*(know|aware|have|think)\b`,
		`\b(don'?t|do\s*not)\s*(have|think)\b`,
		`\b(i'?m|i\s*am)\s*(healthy|fine|good|okay)\b`,
		`\bno\s*(health)?\s*(issues?|problems?|conditions?)\b`,
		`\bnot\s*really\b`,
	})

	conditionRes = []struct {
		re    *regexp.Regexp
		value string
	}{
		{regexp.MustCompile(`\b(hypertension|high\s*blood\s*pressure|high\s*bp|hbp)\b`), "hypertension"},
		{regexp.MustCompile(`\b(diabetes|diabetic|blood\s*sugar)\b`), "diabetes"},
		{regexp.MustCompile(`\b(heart\s*(disease|problem|attack|condition)|cardiac)\b`), "heart disease"},
		{regexp.MustCompile(`\b(high\s*)?cholesterol\b|\blipid\b`), "high cholesterol"},
		{regexp.MustCompile(`\b(stroke|mini\s*stroke|tia)\b`), "stroke history"},
		{regexp.MustCompile(`\b(kidney|renal|ckd)\b`), "kidney disease"},
		{regexp.MustCompile(`\b(asthma|breathing\s*problems?|copd|respiratory)\b`), "respiratory condition"},
	}

	noSmokeRe     = regexp.MustCompile(`\b(don'?t|never|no)\s*smok`)
	formerSmokeRe = regexp.MustCompile(`\b(quit|stopped|former)\b`)
	smokeRe       = regexp.MustCompile(`\bsmok`)

	noDrinkRe      = regexp.MustCompile(`\b(don'?t|never|no)\s*drink`)
	socialDrinkRe  = regexp.MustCompile(`\b(occasional|sometimes|social|rarely)\b`)
	regularDrinkRe = regexp.MustCompile(`\b(regular|daily|often)\b`)

	activityRe = regexp.MustCompile(`\b(sedentary|light|moderate|active)\b`)

	generalQuestionRe = regexp.MustCompile(`(?i)\?|how|what|why|when|can|should|is it`)
	generalTopicRe    = regexp.MustCompile(`(?i)\b(diet|exercise|blood\s*pressure|diabetes|hypertension|heart|weight|habit|health|symptom)\w*\b`)
)

func (t *RegexTier) Extract(_ context.Context, utterance, contextField string, _ []catalog.Field) (ExtractionResult, error) {
	result := newExtractionResult()
	msg := strings.ToLower(strings.TrimSpace(utterance))

	if age, conf := extractAge(utterance); age > 0 {
		result.Fields["age"] = FieldCandidate{Value: strconv.Itoa(age), Confidence: conf * 0.95, Source: SourceRegex}
	}

	switch {
	case maleRe.MatchString(msg):
		result.Fields["sex"] = FieldCandidate{Value: "male", Confidence: 0.9, Source: SourceRegex}
	case femaleRe.MatchString(msg):
		result.Fields["sex"] = FieldCandidate{Value: "female", Confidence: 0.9, Source: SourceRegex}
	case contextField == "sex" && (msg == "m" || msg == "f"):
		v := "male"
		if msg == "f" {
			v = "female"
		}
		result.Fields["sex"] = FieldCandidate{Value: v, Confidence: 0.9, Source: SourceRegex}
	}

	isNone := false
	for _, re := range nonePatterns {
		if re.MatchString(msg) {
			isNone = true
			break
		}
	}
	if isNone {
		switch contextField {
		case "conditions", "family_history", "constraints":
			result.Fields[contextField] = FieldCandidate{Value: "none", Confidence: 0.85, Source: SourceRegex}
		case "smoking", "alcohol":
			result.Fields[contextField] = FieldCandidate{Value: "no", Confidence: 0.85, Source: SourceRegex}
		}
	}

	var conditions []string
	for _, c := range conditionRes {
		if c.re.MatchString(msg) {
			conditions = append(conditions, c.value)
		}
	}
	if len(conditions) > 0 {
		result.Fields["conditions"] = FieldCandidate{Value: strings.Join(conditions, ", "), Confidence: 0.8, Source: SourceRegex}
	}

	switch {
	case noSmokeRe.MatchString(msg):
		result.Fields["smoking"] = FieldCandidate{Value: "no", Confidence: 0.85, Source: SourceRegex}
	case formerSmokeRe.MatchString(msg):
		result.Fields["smoking"] = FieldCandidate{Value: "former", Confidence: 0.8, Source: SourceRegex}
	case smokeRe.MatchString(msg):
		result.Fields["smoking"] = FieldCandidate{Value: "yes", Confidence: 0.7, Source: SourceRegex}
	}

	switch {
	case noDrinkRe.MatchString(msg):
		result.Fields["alcohol"] = FieldCandidate{Value: "no", Confidence: 0.85, Source: SourceRegex}
	case socialDrinkRe.MatchString(msg):
		result.Fields["alcohol"] = FieldCandidate{Value: "occasionally", Confidence: 0.8, Source: SourceRegex}
	case regularDrinkRe.MatchString(msg):
		result.Fields["alcohol"] = FieldCandidate{Value: "regularly", Confidence: 0.8, Source: SourceRegex}
	}

	if m := activityRe.FindString(msg); m != "" && (contextField == "activity" || strings.Contains(msg, "activ") || strings.Contains(msg, "exercis")) {
		result.Fields["activity"] = FieldCandidate{Value: m, Confidence: 0.8, Source: SourceRegex}
	}

	return result, nil
}
