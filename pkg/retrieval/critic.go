// Package retrieval implements corrective retrieval over the guideline
// corpus: vector search, a relevance critic, and a bounded query-rewrite
// loop that reacts to poor candidate sets.
package retrieval

import (
	"strings"
)

// Candidates at or above this stemmed-overlap score count as relevant.
const claimSupportThreshold = 0.4

// Relevance is the critic's verdict on a retrieval candidate.
type Relevance string

const (
	RelevanceAccepted Relevance = "accepted"
	RelevanceRejected Relevance = "rejected"
	RelevanceUnknown  Relevance = "unknown"
)

var criticStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "to": true,
	"of": true, "and": true, "in": true, "that": true, "for": true,
	"with": true, "on": true, "at": true, "it": true, "its": true,
	"this": true, "or": true, "by": true, "can": true, "may": true,
	"should": true, "not": true, "no": true, "but": true, "also": true,
	"has": true, "have": true, "had": true, "what": true, "how": true,
	"i": true, "my": true, "do": true,
}

// suffixes ordered longest first so "ation" strips before "s".
var stemSuffixes = []string{
	"ation", "tion", "sion", "ment", "ness", "ance", "ence",
	"ings", "ing", "ated", "ous", "ive", "ful", "less",
	"able", "ible",
	"ed", "er", "est", "ly", "al",
	"es", "s",
}

// stemWord strips common English suffixes so "smoking" matches "smoke".
func stemWord(word string) string {
	if len(word) <= 3 {
		return word
	}
	for _, suffix := range stemSuffixes {
		if strings.HasSuffix(word, suffix) && len(word)-len(suffix) >= 3 {
			return word[:len(word)-len(suffix)]
		}
	}
	return word
}

func stemSet(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:()\"'")
		if w == "" || criticStopwords[w] {
			continue
		}
		out[stemWord(w)] = true
	}
	return out
}

// Critic judges whether retrieved passages actually speak to a query, and
// whether generated text is grounded in them. It is deliberately cheap:
// stemmed keyword overlap, no model calls.
type Critic struct {
	confidenceThreshold float64
}

func NewCritic(confidenceThreshold float64) *Critic {
	return &Critic{confidenceThreshold: confidenceThreshold}
}

// ScoreRelevance returns the fraction of the query's stemmed content words
// found in the passage. The query here is always the ORIGINAL user query,
// never a rewrite, so rewrites cannot drift the acceptance target.
func (c *Critic) ScoreRelevance(query, passage string) float64 {
	queryStems := stemSet(query)
	if len(queryStems) == 0 {
		return 0
	}
	passageStems := stemSet(passage)
	overlap := 0
	for s := range queryStems {
		if passageStems[s] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryStems))
}

// Judge annotates a candidate's relevance to the original query.
func (c *Critic) Judge(query, passage string) (Relevance, float64) {
	score := c.ScoreRelevance(query, passage)
	if score >= claimSupportThreshold {
		return RelevanceAccepted, score
	}
	return RelevanceRejected, score
}

// AnswerReview is the outcome of grounding-checking a generated answer.
type AnswerReview struct {
	Acceptable        bool     `json:"acceptable"`
	Confidence        float64  `json:"confidence"`
	ClaimsChecked     int      `json:"claimsChecked"`
	ClaimsSupported   int      `json:"claimsSupported"`
	UnsupportedClaims []string `json:"unsupportedClaims"`
}

// ReviewAnswer checks each substantive claim of an answer for support in
// the retrieved passages. Confidence is the supported fraction.
func (c *Critic) ReviewAnswer(answer string, passages []string) AnswerReview {
	claims := extractClaims(answer)
	if len(claims) == 0 {
		return AnswerReview{Acceptable: true, Confidence: 1.0}
	}

	review := AnswerReview{ClaimsChecked: len(claims)}
	for _, claim := range claims {
		supported := false
		for _, passage := range passages {
			if c.ScoreRelevance(claim, passage) >= claimSupportThreshold {
				supported = true
				break
			}
		}
		if supported {
			review.ClaimsSupported++
		} else {
			review.UnsupportedClaims = append(review.UnsupportedClaims, claim)
		}
	}
	review.Confidence = float64(review.ClaimsSupported) / float64(review.ClaimsChecked)
	review.Acceptable = review.Confidence >= c.confidenceThreshold
	return review
}

// extractClaims splits an answer into substantive sentences worth checking.
func extractClaims(answer string) []string {
	normalized := strings.NewReplacer("!", ".", "?", ".").Replace(answer)
	var claims []string
	for _, sentence := range strings.Split(normalized, ".") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) <= 20 {
			continue
		}
		lower := strings.ToLower(sentence)
		if strings.HasPrefix(lower, "i ") || strings.HasPrefix(lower, "you ") || strings.HasPrefix(lower, "thank") {
			continue
		}
		claims = append(claims, sentence)
	}
	return claims
}
