package intake

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/healthbridge-ai/healthbridge/pkg/ai"
	"github.com/healthbridge-ai/healthbridge/pkg/catalog"
)

// Intent is a coarse classification of what an utterance is doing.
type Intent string

const (
	IntentAffirmative  Intent = "affirmative"
	IntentNegative     Intent = "negative"
	IntentQualifiedYes Intent = "qualified_yes"
	IntentQualifiedNo  Intent = "qualified_no"
	IntentUncertain    Intent = "uncertain"
	IntentInformative  Intent = "informative"
)

const (
	// Matches below this similarity are discarded.
	semanticAcceptFloor = 0.5
	// Embedding similarity must clear this to count as a match.
	embeddingFloor = 0.6
)

var intentExamples = map[Intent][]string{
	IntentAffirmative: {
		"yes", "yeah", "yep", "yup", "correct", "right", "exactly",
		"that's right", "indeed", "absolutely", "definitely", "sure",
		"of course", "certainly", "i do", "i have", "i am", "true",
	},
	IntentNegative: {
		"no", "nope", "nah", "none", "nothing", "not really",
		"i don't", "i dont", "don't have", "dont have", "never",
		"none that i know", "not that i know of", "i don't think so",
		"not at all", "negative", "false", "neither",
		"i'm fine", "i'm good", "i'm healthy", "all good",
		"no issues", "no problems", "nothing wrong",
	},
	IntentUncertain: {
		"maybe", "perhaps", "possibly", "not sure", "i think",
		"i guess", "probably", "might", "could be", "sometimes",
		"kind of", "sort of", "i believe", "supposedly",
	},
}

var qualifiedYesRes = compileAll([]string{
	`\b(yes|yeah|yep)\b.*\b(but|except|however|although|though|sometimes)\b`,
	`\b(mostly|usually|generally)\b.*\b(yes|yeah)\b`,
})

var qualifiedNoRes = compileAll([]string{
	`\b(no|nope|nah)\b.*\b(but|except|however|although|well|sometimes)\b`,
	`\b(not really|not much)\b.*\b(but|except)\b`,
})

var stopWords = map[string]bool{
	"i": true, "a": true, "an": true, "the": true, "am": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "don't": true, "dont": true, "doesn't": true,
	"my": true, "me": true, "mine": true, "we": true, "our": true,
	"you": true, "your": true, "he": true, "she": true, "it": true,
	"they": true, "in": true, "at": true, "to": true, "of": true,
	"for": true, "and": true, "or": true, "but": true, "not": true,
	"on": true, "with": true, "that": true, "this": true, "all": true,
	"very": true, "really": true, "just": true, "so": true, "like": true,
	"also": true, "being": true, "would": true, "could": true,
	"should": true, "will": true, "can": true, "may": true, "about": true,
	"than": true, "then": true, "too": true, "much": true, "many": true,
	"some": true, "any": true,
}

var familyWords = map[string]bool{
	"father": true, "mother": true, "dad": true, "mom": true,
	"parent": true, "parents": true, "grandfather": true,
	"grandmother": true, "grandpa": true, "grandma": true,
	"brother": true, "sister": true, "uncle": true, "aunt": true,
	"sibling": true,
}

// SemanticTier resolves utterances against the catalog's synonym phrase
// banks without any completion call. Matching runs cheap string strategies
// first and consults embeddings only when those are inconclusive; an
// embedder is optional and the tier degrades to string matching without one.
type SemanticTier struct {
	catalog  *catalog.Catalog
	embedder ai.Embedding
	model    string
	logger   *log.Logger

	// phrase embeddings per field/value, primed lazily on first use
	phraseVecs map[string]map[string][][]float64
}

func NewSemanticTier(cat *catalog.Catalog, embedder ai.Embedding, model string, logger *log.Logger) *SemanticTier {
	return &SemanticTier{catalog: cat, embedder: embedder, model: model, logger: logger}
}

func (t *SemanticTier) Name() string { return "semantic" }

func (t *SemanticTier) Extract(ctx context.Context, utterance, contextField string, remaining []catalog.Field) (ExtractionResult, error) {
	result := newExtractionResult()
	text := strings.ToLower(strings.TrimSpace(utterance))
	intent, intentConf := t.classifyIntent(text)

	t.applyIntentRouting(result, intent, intentConf, contextField)

	// Relative mentions plus a condition keyword describe family history,
	// not the user's own conditions.
	hasFamilyContext := t.hasFamilyContext(text)
	if hasFamilyContext {
		if _, ok := result.Fields["family_history"]; !ok {
			result.Fields["family_history"] = FieldCandidate{
				Value:      strings.TrimSpace(utterance),
				Confidence: 0.9,
				Source:     SourceSemantic,
			}
		}
	}

	for _, field := range t.catalog.All() {
		if _, ok := result.Fields[field.Name]; ok {
			continue
		}
		if field.Name == "conditions" && hasFamilyContext {
			continue
		}
		if len(field.Synonyms) == 0 {
			continue
		}
		value, score := t.matchField(ctx, text, field)
		if value == "" || score < semanticAcceptFloor {
			continue
		}
		if field.Name == contextField {
			score = min(score*1.3, 1.0)
		}
		result.Fields[field.Name] = FieldCandidate{Value: value, Confidence: score, Source: SourceSemantic}
	}

	if age, conf := extractAge(utterance); age > 0 {
		result.Fields["age"] = FieldCandidate{Value: strconv.Itoa(age), Confidence: conf, Source: SourceSemantic}
	}

	t.detectImplied(text, result.Implied)
	return result, nil
}

func (t *SemanticTier) applyIntentRouting(result ExtractionResult, intent Intent, conf float64, contextField string) {
	if contextField == "" {
		return
	}
	field, ok := t.catalog.Field(contextField)
	if !ok {
		return
	}
	switch {
	case intent == IntentNegative && conf > 0.7:
		if v, ok := field.NegativeValue(); ok {
			result.Fields[contextField] = FieldCandidate{Value: v, Confidence: conf, Source: SourceSemantic}
		}
	case intent == IntentAffirmative && conf > 0.7:
		if v, ok := field.AffirmativeValue(); ok {
			result.Fields[contextField] = FieldCandidate{Value: v, Confidence: conf, Source: SourceSemantic}
		}
	case intent == IntentUncertain && conf > 0.6 && field.Type == catalog.FieldText:
		result.Fields[contextField] = FieldCandidate{Value: "uncertain", Confidence: conf * 0.7, Source: SourceSemantic}
	}
}

func (t *SemanticTier) hasFamilyContext(text string) bool {
	for _, w := range strings.Fields(text) {
		if familyWords[strings.Trim(w, ".,!?'")] {
			return true
		}
	}
	return false
}

// matchField scores an utterance against one field's phrase bank and
// returns the best normalized value.
func (t *SemanticTier) matchField(ctx context.Context, text string, field catalog.Field) (string, float64) {
	bestValue := ""
	bestScore := 0.0

	for value, phrases := range field.Synonyms {
		for _, phrase := range phrases {
			if phrase == text {
				return value, 1.0
			}
			if strings.Contains(text, phrase) {
				if score := float64(len(phrase)) / float64(max(len(text), 1)); score > bestScore {
					bestScore, bestValue = score, value
				}
			}
			if len(text) > 2 && strings.Contains(phrase, text) {
				if score := float64(len(text)) / float64(len(phrase)) * 0.9; score > bestScore {
					bestScore, bestValue = score, value
				}
			}
		}
	}

	textWords := contentWords(text)
	if len(textWords) > 0 {
		for value, phrases := range field.Synonyms {
			for _, phrase := range phrases {
				phraseWords := contentWords(phrase)
				if len(phraseWords) == 0 {
					continue
				}
				overlap := 0
				for w := range textWords {
					if phraseWords[w] {
						overlap++
					}
				}
				if overlap == 0 {
					continue
				}
				score := float64(overlap) / float64(max(len(textWords), len(phraseWords))) * 0.85
				if score > bestScore {
					bestScore, bestValue = score, value
				}
			}
		}
	}

	if t.embedder != nil && bestScore < semanticShortCircuit {
		if value, score := t.matchByEmbedding(ctx, text, field); score > bestScore {
			bestScore, bestValue = score, value
		}
	}

	if bestScore < 0.6 {
		if value, score := fuzzyMatch(text, field.Synonyms); score > bestScore {
			bestScore, bestValue = score, value
		}
	}

	return bestValue, bestScore
}

func (t *SemanticTier) matchByEmbedding(ctx context.Context, text string, field catalog.Field) (string, float64) {
	if err := t.primeField(ctx, field); err != nil {
		t.logger.Debug("phrase embedding failed", "field", field.Name, "error", err)
		return "", 0
	}
	vec, err := t.embedder.Embedding(ctx, text, t.model)
	if err != nil {
		return "", 0
	}
	bestValue := ""
	bestScore := 0.0
	for value, phraseVecs := range t.phraseVecs[field.Name] {
		for _, pv := range phraseVecs {
			if sim := cosineSimilarity(vec, pv); sim > embeddingFloor && sim > bestScore {
				bestScore, bestValue = sim, value
			}
		}
	}
	return bestValue, bestScore
}

func (t *SemanticTier) primeField(ctx context.Context, field catalog.Field) error {
	if t.phraseVecs == nil {
		t.phraseVecs = map[string]map[string][][]float64{}
	}
	if _, ok := t.phraseVecs[field.Name]; ok {
		return nil
	}
	byValue := map[string][][]float64{}
	for value, phrases := range field.Synonyms {
		vecs, err := t.embedder.Embeddings(ctx, phrases, t.model)
		if err != nil {
			return err
		}
		byValue[value] = vecs
	}
	t.phraseVecs[field.Name] = byValue
	return nil
}

func (t *SemanticTier) classifyIntent(text string) (Intent, float64) {
	for _, re := range qualifiedYesRes {
		if re.MatchString(text) {
			return IntentQualifiedYes, 0.85
		}
	}
	for _, re := range qualifiedNoRes {
		if re.MatchString(text) {
			return IntentQualifiedNo, 0.85
		}
	}
	best := IntentInformative
	bestScore := 0.0
	for intent, examples := range intentExamples {
		for _, example := range examples {
			if example == text {
				return intent, 1.0
			}
			if strings.Contains(text, example) {
				if score := float64(len(example)) / float64(max(len(text), 1)); score > bestScore {
					bestScore, best = score, intent
				}
			}
		}
	}
	return best, bestScore
}

func (t *SemanticTier) detectImplied(text string, implied map[string]string) {
	if nightShiftRe.MatchString(text) {
		implied["sleep_pattern"] = "irregular (works nights)"
	}
	if deskJobRe.MatchString(text) {
		implied["activity_hint"] = "likely sedentary"
	}
	if stressRe.MatchString(text) {
		implied["stress"] = "mentioned stress"
	}
}

var (
	nightShiftRe = regexp.MustCompile(`\b(night\s*shift|overnight|graveyard)\b`)
	deskJobRe    = regexp.MustCompile(`\b(desk\s*job|office|sit\s*all\s*day)\b`)
	stressRe     = regexp.MustCompile(`\b(stress|stressed|anxious)\b`)
)

func contentWords(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".,!?")
		if w != "" && !stopWords[w] {
			out[w] = true
		}
	}
	return out
}

// fuzzyMatch handles typos via Levenshtein distance against whole phrases.
// Confidence is scaled down since a fuzzy hit is weaker evidence.
func fuzzyMatch(text string, synonyms map[string][]string) (string, float64) {
	bestValue := ""
	bestScore := 0.0
	for value, phrases := range synonyms {
		for _, phrase := range phrases {
			if score := fuzzyScore(text, phrase); score > bestScore {
				bestScore, bestValue = score, value
			}
		}
	}
	if bestScore < 0.6 {
		return "", 0
	}
	return bestValue, bestScore * 0.8
}

func fuzzyScore(s1, s2 string) float64 {
	if s1 == "" || s2 == "" {
		return 0
	}
	if s1 == s2 {
		return 1
	}
	m, n := len(s1), len(s2)
	if abs(m-n) > max(m, n)/2 {
		return 0
	}
	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}
	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			if s1[i-1] == s2[j-1] {
				curr[j] = prev[j-1]
			} else {
				curr[j] = 1 + min3(prev[j], curr[j-1], prev[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return 1.0 - float64(prev[n])/float64(max(m, n))
}

// agePatterns covers explicit ages, decade phrasing, and survey-style bands
// like "30-39" (normalized to the band midpoint).
var agePatterns = []struct {
	re      *regexp.Regexp
	extract func([]string) int
}{
	{regexp.MustCompile(`(?i)\b(\d{1,3})\s*(years?\s*old|y/?o|yrs?)\b`), func(m []string) int { return atoi(m[1]) }},
	{regexp.MustCompile(`(?i)\b(?:i'?m|i am|am)\s*(\d{2,3})\b`), func(m []string) int { return atoi(m[1]) }},
	{regexp.MustCompile(`(?i)\bmid[- ]?(\d)0'?s?\b`), func(m []string) int { return atoi(m[1])*10 + 5 }},
	{regexp.MustCompile(`(?i)\bearly\s*(\d)0'?s?\b`), func(m []string) int { return atoi(m[1])*10 + 2 }},
	{regexp.MustCompile(`(?i)\blate\s*(\d)0'?s?\b`), func(m []string) int { return atoi(m[1])*10 + 8 }},
	{regexp.MustCompile(`^\s*(\d{1,3})\s*-\s*(\d{1,3})\s*$`), func(m []string) int { return (atoi(m[1]) + atoi(m[2]) + 1) / 2 }},
	{regexp.MustCompile(`^\s*(\d{2,3})\s*$`), func(m []string) int { return atoi(m[1]) }},
}

var wordTens = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var wordOnes = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9,
}

func extractAge(text string) (int, float64) {
	for _, p := range agePatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			if age := p.extract(m); age >= 1 && age <= 120 {
				return age, 0.95
			}
		}
	}
	lower := strings.ToLower(text)
	for tensWord, tens := range wordTens {
		for onesWord, ones := range wordOnes {
			re := regexp.MustCompile(`\b` + tensWord + `[\s-]?` + onesWord + `\b`)
			if re.MatchString(lower) {
				return tens + ones, 0.9
			}
		}
	}
	return 0, 0
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func min3(a, b, c int) int {
	return min(a, min(b, c))
}
