// Package server exposes the conversation, retrieval, and memory surfaces
// over JSON HTTP.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi"
	"github.com/pkg/errors"
	"github.com/rs/cors"

	"github.com/healthbridge-ai/healthbridge/pkg/intake"
	"github.com/healthbridge-ai/healthbridge/pkg/memory"
	"github.com/healthbridge-ai/healthbridge/pkg/retrieval"
	"github.com/healthbridge-ai/healthbridge/pkg/session"
)

const userIDHeader = "X-User-ID"

// Server holds the services the handlers dispatch to.
type Server struct {
	sessions  *session.Service
	retriever *retrieval.Retriever
	indexer   *retrieval.Indexer
	memory    *memory.Service
	logger    *log.Logger
}

func New(sessions *session.Service, retriever *retrieval.Retriever, indexer *retrieval.Indexer, mem *memory.Service, logger *log.Logger) *Server {
	return &Server{
		sessions:  sessions,
		retriever: retriever,
		indexer:   indexer,
		memory:    mem,
		logger:    logger,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(cors.New(cors.Options{
		AllowCredentials: true,
		AllowedOrigins:   []string{"*"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept", userIDHeader},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
	}).Handler)

	router.Get("/healthz", s.handleHealth)

	router.Post("/sessions", s.handleCreateSession)
	router.Post("/sessions/{sessionID}/turns", s.handlePostTurn)
	router.Get("/sessions/{sessionID}/turns", s.handleGetTurns)

	router.Get("/profile/{userID}", s.handleGetProfile)
	router.Put("/profile/{userID}", s.handlePutProfile)

	router.Post("/retrieve", s.handleRetrieve)
	router.Post("/guidelines", s.handleIndexGuideline)

	router.Post("/memory/remember", s.handleRemember)
	router.Post("/memory/recall", s.handleRecall)

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing "+userIDHeader+" header"))
		return
	}
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.sessions.Create(r.Context(), userID, intake.Mode(req.Mode))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type postTurnRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePostTurn(w http.ResponseWriter, r *http.Request) {
	var req postTurnRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	res, err := s.sessions.PostTurn(r.Context(), chi.URLParam(r, "sessionID"), req.Text)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTurns(w http.ResponseWriter, r *http.Request) {
	turns, err := s.sessions.Turns(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.sessions.Profile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, errors.New("profile not found"))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var profile intake.Profile
	if err := decodeBody(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profile.UserID = chi.URLParam(r, "userID")

	if err := s.sessions.SaveProfile(r.Context(), &profile); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type retrieveRequest struct {
	Query       string `json:"query"`
	K           int    `json:"k"`
	MaxRewrites int    `json:"maxRewrites"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, errors.New("query is required"))
		return
	}
	if req.K <= 0 {
		req.K = 5
	}
	if req.MaxRewrites <= 0 {
		req.MaxRewrites = 2
	}

	candidates, err := s.retriever.Retrieve(r.Context(), req.Query, req.K, req.MaxRewrites)
	exhausted := errors.Is(err, retrieval.ErrRetrievalExhausted)
	if err != nil && !exhausted {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": candidates,
		"exhausted":  exhausted,
	})
}

type indexGuidelineRequest struct {
	Text      string `json:"text"`
	Condition string `json:"condition"`
	Topic     string `json:"topic"`
	Source    string `json:"source"`
}

func (s *Server) handleIndexGuideline(w http.ResponseWriter, r *http.Request) {
	var req indexGuidelineRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Text == "" || req.Source == "" {
		writeError(w, http.StatusBadRequest, errors.New("text and source are required"))
		return
	}

	count, err := s.indexer.IndexGuideline(r.Context(), req.Text, req.Condition, req.Topic, req.Source)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"chunks": count})
}

type rememberRequest struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing "+userIDHeader+" header"))
		return
	}
	var req rememberRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Text == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, errors.New("type and text are required"))
		return
	}

	record, err := s.memory.Write(r.Context(), userID, memory.RecordType(req.Type), req.Text, memory.WithSource("api"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

type recallRequest struct {
	Type  string `json:"type"`
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing "+userIDHeader+" header"))
		return
	}
	var req recallRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, errors.New("query is required"))
		return
	}

	records, err := s.memory.Recall(r.Context(), userID, memory.RecordType(req.Type), req.Query, req.K)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, session.ErrSessionComplete):
		writeError(w, http.StatusConflict, err)
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, "decoding request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
