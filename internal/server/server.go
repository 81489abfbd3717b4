// Package server exposes the persona library and campaign agent over a JSON
// HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/obsidiansec/personaforge/internal/campaign"
	"github.com/obsidiansec/personaforge/internal/config"
	"github.com/obsidiansec/personaforge/internal/intel"
	"github.com/obsidiansec/personaforge/internal/persona"
)

// Server hosts the HTTP API over a loaded library and campaign agent.
type Server struct {
	cfg     config.ServerConfig
	library *persona.Library
	agent   *campaign.Agent
	log     *zap.Logger

	httpServer *http.Server
}

func New(cfg config.ServerConfig, library *persona.Library, agent *campaign.Agent, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		library: library,
		agent:   agent,
		log:     logger.Named("server"),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/personas", s.handleListPersonas)
		r.Get("/personas/{ref}", s.handleGetPersona)
		r.Post("/personas/custom", s.handleCreateCustom)
		r.Post("/campaigns", s.handleRunCampaign)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// Serve runs the HTTP server until the context is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP API listening", zap.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	summaries, err := s.library.List()
	if err != nil {
		s.log.Error("Failed to list personas", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to enumerate personas")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(summaries),
		"personas": summaries,
	})
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	p, err := s.library.Resolve(ref)
	if err != nil {
		switch {
		case errors.Is(err, intel.ErrNotFound):
			s.respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, intel.ErrAmbiguousName):
			s.respondError(w, http.StatusConflict, err.Error())
		default:
			s.log.Error("Failed to resolve persona", zap.String("ref", ref), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "failed to resolve persona")
		}
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

// CustomPersonaRequest is the POST body for creating a custom persona.
type CustomPersonaRequest struct {
	Name      string                  `json:"name"`
	Base      string                  `json:"base"`
	Overrides persona.CustomOverrides `json:"overrides"`
}

func (s *Server) handleCreateCustom(w http.ResponseWriter, r *http.Request) {
	var req CustomPersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || req.Base == "" {
		s.respondError(w, http.StatusBadRequest, "name and base are required")
		return
	}

	p, err := s.library.CreateCustom(req.Name, req.Base, req.Overrides)
	if err != nil {
		switch {
		case errors.Is(err, persona.ErrNameTaken):
			s.respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, persona.ErrBaseNotFound), errors.Is(err, persona.ErrUnknownTechnique):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.log.Error("Failed to create custom persona", zap.String("name", req.Name), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "failed to create custom persona")
		}
		return
	}
	s.respondJSON(w, http.StatusCreated, p)
}

// CampaignRequest is the POST body for simulating a campaign.
type CampaignRequest struct {
	Persona  string `json:"persona"`
	Scenario string `json:"scenario"`
	Seed     int64  `json:"seed"`
}

func (s *Server) handleRunCampaign(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Persona == "" {
		s.respondError(w, http.StatusBadRequest, "persona is required")
		return
	}
	if req.Scenario == "" {
		req.Scenario = "full_chain"
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}

	p, err := s.library.Resolve(req.Persona)
	if err != nil {
		if errors.Is(err, intel.ErrNotFound) || errors.Is(err, intel.ErrAmbiguousName) {
			s.respondError(w, http.StatusNotFound, err.Error())
		} else {
			s.log.Error("Failed to resolve persona for campaign", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "failed to resolve persona")
		}
		return
	}

	clog, err := s.agent.Run(p, req.Scenario, req.Seed)
	if err != nil {
		if errors.Is(err, campaign.ErrUnknownScenario) {
			s.respondError(w, http.StatusBadRequest, err.Error())
		} else {
			s.log.Error("Campaign simulation failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "campaign simulation failed")
		}
		return
	}
	s.respondJSON(w, http.StatusOK, clog)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.library.Stats())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
