package server

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge-ai/healthbridge/pkg/agents"
	"github.com/healthbridge-ai/healthbridge/pkg/catalog"
	"github.com/healthbridge-ai/healthbridge/pkg/intake"
	"github.com/healthbridge-ai/healthbridge/pkg/memory"
	"github.com/healthbridge-ai/healthbridge/pkg/retrieval"
	"github.com/healthbridge-ai/healthbridge/pkg/session"
	"github.com/healthbridge-ai/healthbridge/pkg/vectorstore"
)

type wordHashEmbedder struct{}

const embedderDims = 32

func (wordHashEmbedder) Embedding(_ context.Context, input, _ string) ([]float64, error) {
	vec := make([]float64, embedderDims)
	for _, w := range strings.Fields(strings.ToLower(input)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,!?")))
		vec[h.Sum32()%embedderDims]++
	}
	return vec, nil
}

func (e wordHashEmbedder) Embeddings(ctx context.Context, inputs []string, model string) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	for i, in := range inputs {
		v, _ := e.Embedding(ctx, in, model)
		out[i] = v
	}
	return out, nil
}

type fixedEvaluator struct{ reply string }

func (e fixedEvaluator) Evaluate(context.Context, string, *intake.Profile, []intake.Signal, string) (*agents.Output, error) {
	return &agents.Output{Reply: e.reply, RawReply: e.reply}, nil
}

func (e fixedEvaluator) Answer(context.Context, string, string) (*agents.Output, error) {
	return &agents.Output{Reply: e.reply, RawReply: e.reply}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	logger := log.New(io.Discard)

	store := vectorstore.NewMemoryStore()
	embedder, err := vectorstore.NewEmbeddingWrapper(wordHashEmbedder{}, "test-model")
	require.NoError(t, err)

	retriever := retrieval.NewRetriever(store, embedder, retrieval.NewCritic(0.6), logger)
	indexer := retrieval.NewIndexer(store, embedder, logger)
	mem := memory.NewService(store, embedder, logger)

	sessions := session.NewService(session.Config{
		Catalog: cat,
		Extractor: intake.NewTieredExtractor(
			intake.NewSemanticTier(cat, nil, "", logger), nil, intake.NewRegexTier(), logger),
		Questions: intake.NewQuestionGenerator(cat),
		Detector:  intake.NewDetector(),
		Evaluator: fixedEvaluator{reply: "Here's your plan: walk after dinner."},
		Logger:    logger,
	})

	srv := httptest.NewServer(New(sessions, retriever, indexer, mem, logger).Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, userID string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"ok"`, string(body["status"]))
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/sessions", "u1", map[string]string{"mode": "intake"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sessionID string
	require.NoError(t, json.Unmarshal(body["sessionId"], &sessionID))
	require.NotEmpty(t, sessionID)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/sessions/"+sessionID+"/turns", "u1",
		map[string]string{"text": "I'm 45"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var agent string
	require.NoError(t, json.Unmarshal(body["agent"], &agent))
	assert.Equal(t, "collector", agent)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/sessions/"+sessionID+"/turns", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var turns []intake.Turn
	require.NoError(t, json.Unmarshal(body["turns"], &turns))
	assert.Len(t, turns, 3)
}

func TestCreateSessionRequiresUser(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/sessions", "", map[string]string{"mode": "intake"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownSessionIs404(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/sessions/nope/turns", "u1", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGuidelineIndexAndRetrieve(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/guidelines", "", map[string]string{
		"text":      "Reducing salt intake lowers blood pressure in adults with hypertension. Keep sodium under two grams per day and favor fresh food over processed food.",
		"condition": "hypertension",
		"topic":     "diet",
		"source":    "who",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var chunks int
	require.NoError(t, json.Unmarshal(body["chunks"], &chunks))
	assert.Equal(t, 1, chunks)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/retrieve", "", map[string]any{
		"query": "how to lower blood pressure",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var candidates []retrieval.Candidate
	require.NoError(t, json.Unmarshal(body["candidates"], &candidates))
	require.NotEmpty(t, candidates)
	assert.Contains(t, candidates[0].Text, "salt")
}

func TestMemoryRememberAndRecall(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/memory/remember", "u1", map[string]string{
		"type": "constraint", "text": "works night shifts at the hospital",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/memory/recall", "u1", map[string]any{
		"type": "constraint", "query": "night shifts",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []memory.Record
	require.NoError(t, json.Unmarshal(body["records"], &records))
	require.NotEmpty(t, records)
	assert.Contains(t, records[0].Text, "night shifts")
}
