package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fame-flywheel/internal/config"
	"fame-flywheel/internal/feedback"
	"fame-flywheel/internal/lifecycle"
	"fame-flywheel/internal/metrics"
	"fame-flywheel/internal/models"
	"fame-flywheel/internal/store"
)

// Server wires the ops HTTP surface: job inspection, the publisher's upload
// callback, and the current fame-velocity readout.
type Server struct {
	cfg   config.Config
	store store.Store
	ctrl  *lifecycle.Controller
	best  feedback.BestSource
}

// New constructs the ops server.
func New(cfg config.Config, st store.Store, ctrl *lifecycle.Controller, best feedback.BestSource) *Server {
	return &Server{cfg: cfg, store: st, ctrl: ctrl, best: best}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", metrics.Handler())

	r.Post("/jobs", s.handleCreateJob)
	r.Get("/jobs/stuck", s.handleStuck)
	r.Get("/jobs/{key}", s.handleGetJob)
	r.Get("/jobs/{key}/samples", s.handleSamples)
	r.Post("/jobs/{key}/uploaded", s.handleUploaded)
	r.Get("/velocity", s.handleVelocity)
	return r
}

type createJobRequest struct {
	Genre string `json:"genre"`
	Style string `json:"style"`
	Voice string `json:"voice"`
}

// handleCreateJob lets an operator schedule a job with explicit parameters,
// bypassing the bandit.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Genre == "" || req.Style == "" || req.Voice == "" {
		http.Error(w, "genre, style and voice are required", http.StatusBadRequest)
		return
	}

	job, err := s.store.CreateJob(r.Context(), models.ParameterCombination{
		Genre: req.Genre,
		Style: req.Style,
		Voice: req.Voice,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	job, err := s.store.GetJob(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, err := s.store.GetJob(r.Context(), key); errors.Is(err, store.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	samples, err := s.store.SamplesForJob(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": samples})
}

type uploadedRequest struct {
	ExternalID string `json:"external_id"`
}

// handleUploaded is the publisher's callback: the platform id it was issued
// moves the job to UPLOADED and stamps the upload time.
func (s *Server) handleUploaded(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req uploadedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ExternalID == "" {
		http.Error(w, "external_id is required", http.StatusBadRequest)
		return
	}

	err := s.ctrl.MarkUploaded(r.Context(), key, req.ExternalID)
	var inv *store.InvalidTransitionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "job not found", http.StatusNotFound)
		return
	case errors.As(err, &inv):
		http.Error(w, inv.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusUploaded})
}

// handleStuck lists jobs sitting in CREATING past the configured threshold.
func (s *Server) handleStuck(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.StuckCreating(r.Context(), s.cfg.StuckThreshold)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": jobs})
}

type velocityResponse struct {
	Found bool           `json:"found"`
	Best  *feedback.Best `json:"best,omitempty"`
}

func (s *Server) handleVelocity(w http.ResponseWriter, r *http.Request) {
	best, found, err := s.best.BestCombination(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := velocityResponse{Found: found}
	if found {
		resp.Best = &best
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
