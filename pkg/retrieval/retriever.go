package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/healthbridge-ai/healthbridge/pkg/vectorstore"
)

// GuidelineNamespace scopes guideline chunks in the vector store.
const GuidelineNamespace = "guidelines"

// ErrRetrievalExhausted flags a best-effort result: every rewrite attempt
// fell below the acceptance threshold. The candidates returned alongside it
// are still the best set seen and are safe to use at reduced confidence.
var ErrRetrievalExhausted = errors.New("retrieval attempts exhausted below acceptance threshold")

// Candidate is one retrieved guideline passage with the critic's verdict.
type Candidate struct {
	Text        string    `json:"text"`
	SourceDocID string    `json:"sourceDocId"`
	Score       float64   `json:"score"`
	Relevance   Relevance `json:"relevance"`
}

// acceptedFractionThreshold is the share of candidates the critic must
// accept before an attempt's result set is considered good.
const acceptedFractionThreshold = 0.5

// rewriteTemplates are the deterministic query rewrites, applied in order.
// Each attempt's rewritten query is logged so runs are reproducible.
var rewriteTemplates = []string{
	"%s recommendations guidance",
	"health guidance for %s",
	"%s prevention lifestyle advice",
}

// Retriever performs corrective retrieval: search, critique against the
// original query, rewrite, and retry, returning the best set seen.
type Retriever struct {
	store    vectorstore.Store
	embedder *vectorstore.EmbeddingWrapper
	critic   *Critic
	logger   *log.Logger
}

func NewRetriever(store vectorstore.Store, embedder *vectorstore.EmbeddingWrapper, critic *Critic, logger *log.Logger) *Retriever {
	return &Retriever{store: store, embedder: embedder, critic: critic, logger: logger}
}

// Retrieve returns up to k guideline candidates for the query. When no
// attempt clears the acceptance threshold it returns the top-scoring set
// seen together with ErrRetrievalExhausted; the result is only empty when
// the index holds nothing for the namespace.
func (r *Retriever) Retrieve(ctx context.Context, query string, k, maxRewrites int) ([]Candidate, error) {
	if k <= 0 {
		k = 5
	}

	var best []Candidate
	bestAccepted := -1

	for attempt := 0; attempt <= maxRewrites; attempt++ {
		attemptQuery := rewriteQuery(query, attempt)
		if attempt > 0 {
			r.logger.Info("rewriting query", "attempt", attempt, "query", attemptQuery)
		}

		candidates, err := r.search(ctx, attemptQuery, k)
		if err != nil {
			return nil, errors.Wrap(err, "guideline search")
		}
		if len(candidates) == 0 {
			continue
		}

		// The critic always judges against the original query.
		accepted := 0
		for i := range candidates {
			verdict, score := r.critic.Judge(query, candidates[i].Text)
			candidates[i].Relevance = verdict
			if verdict == RelevanceAccepted {
				accepted++
			}
			// Blend vector score and critic score for ordering.
			candidates[i].Score = (candidates[i].Score + score) / 2
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Score > candidates[j].Score
		})

		if accepted > bestAccepted {
			bestAccepted = accepted
			best = candidates
		}

		if float64(accepted)/float64(len(candidates)) >= acceptedFractionThreshold {
			return onlyAcceptedOrAll(candidates), nil
		}
	}

	if len(best) == 0 {
		// Nothing in the index for this namespace: flagged, not fatal.
		return nil, ErrRetrievalExhausted
	}
	r.logger.Warn("retrieval below acceptance threshold, returning best-effort set",
		"query", query, "accepted", bestAccepted, "candidates", len(best))
	return best, ErrRetrievalExhausted
}

func (r *Retriever) search(ctx context.Context, query string, k int) ([]Candidate, error) {
	vector, err := r.embedder.Embedding(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embedding query")
	}
	results, err := r.store.Search(ctx, vector, k, vectorstore.Filter{Namespace: GuidelineNamespace})
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(results))
	for _, res := range results {
		candidates = append(candidates, Candidate{
			Text:        res.Document.Text,
			SourceDocID: res.Document.Metadata["docId"],
			Score:       1 - res.Distance,
			Relevance:   RelevanceUnknown,
		})
	}
	return candidates, nil
}

// rewriteQuery is deterministic: attempt 0 is the query itself, later
// attempts cycle through fixed expansion templates.
func rewriteQuery(query string, attempt int) string {
	if attempt == 0 {
		return query
	}
	template := rewriteTemplates[(attempt-1)%len(rewriteTemplates)]
	return fmt.Sprintf(template, query)
}

func onlyAcceptedOrAll(candidates []Candidate) []Candidate {
	var accepted []Candidate
	for _, c := range candidates {
		if c.Relevance == RelevanceAccepted {
			accepted = append(accepted, c)
		}
	}
	if len(accepted) == 0 {
		return candidates
	}
	return accepted
}
