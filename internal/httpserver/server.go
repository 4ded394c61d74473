package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/BidWorks/Outreach/internal/campaign"
	"github.com/BidWorks/Outreach/internal/models"
	"github.com/BidWorks/Outreach/internal/store"
	"github.com/BidWorks/Outreach/internal/tracker"
)

// Server exposes the outreach core to the composition layer: campaign
// creation and lifecycle plus the distribution/follow-up read surface.
type Server struct {
	service *campaign.Service
	orch    *campaign.Orchestrator
	tracker *tracker.Tracker
	store   store.Store
}

func New(service *campaign.Service, orch *campaign.Orchestrator, tr *tracker.Tracker, st store.Store) *Server {
	return &Server{service: service, orch: orch, tracker: tr, store: st}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/campaigns", s.handleLaunch)
	r.Get("/campaigns/{id}", s.handleGet)
	r.Post("/campaigns/{id}/close", s.handleClose)
	r.Post("/campaigns/{id}/responses", s.handleResponse)
	r.Get("/requests/{id}/distribution", s.handleDistribution)
	r.Get("/followups", s.handleFollowUps)
	r.Post("/followups/dispatch", s.handleDispatchFollowUps)
	r.Get("/healthz", s.handleHealth)

	return r
}

type launchBody struct {
	Request models.Request     `json:"request"`
	Hints   []models.Candidate `json:"hints,omitempty"`
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var body launchBody
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.service.Launch(r.Context(), body.Request, body.Hints)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	c, err := s.store.GetCampaign(r.Context(), id)
	if err != nil {
		respondNotFound(w, err)
		return
	}
	metrics, err := s.orch.Metrics(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign": c,
		"metrics":  metrics,
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	c, err := s.orch.Close(r.Context(), id)
	if err != nil {
		respondNotFound(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type responseBody struct {
	CandidateKey string                 `json:"candidateKey"`
	Outcome      models.ResponseOutcome `json:"outcome"`
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var body responseBody
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.CandidateKey == "" {
		respondError(w, http.StatusBadRequest, "candidateKey required")
		return
	}
	switch body.Outcome {
	case models.ResponseInterested, models.ResponseDeclined, models.ResponsePending:
	default:
		respondError(w, http.StatusBadRequest, "outcome must be interested, declined or pending")
		return
	}
	attempt, err := s.orch.RecordResponse(r.Context(), id, body.CandidateKey, body.Outcome)
	if err != nil {
		respondNotFound(w, err)
		return
	}
	respondJSON(w, http.StatusOK, attempt)
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	summary, err := s.tracker.Summary(r.Context(), id)
	if err != nil {
		respondNotFound(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleFollowUps(w http.ResponseWriter, r *http.Request) {
	minDays := queryInt(r, "minDays", 3)
	maxFollowUps := queryInt(r, "maxFollowUps", 2)
	attempts, err := s.tracker.FollowUpCandidates(r.Context(), minDays, maxFollowUps)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"eligible": attempts,
	})
}

func (s *Server) handleDispatchFollowUps(w http.ResponseWriter, r *http.Request) {
	minDays := queryInt(r, "minDays", 3)
	maxFollowUps := queryInt(r, "maxFollowUps", 2)
	sent, err := s.service.DispatchFollowUps(r.Context(), minDays, maxFollowUps)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"dispatched": sent,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondNotFound(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	respondError(w, http.StatusBadRequest, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]interface{}{"error": msg})
}
