package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/medquery/internal/assistant"
	"github.com/nidhogg/medquery/internal/provider"
	"github.com/nidhogg/medquery/internal/record"
	"github.com/nidhogg/medquery/internal/registry"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	service  *assistant.Service
	store    *record.Store
	registry *registry.Registry
	provider *provider.Router
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	service *assistant.Service,
	store *record.Store,
	reg *registry.Registry,
	prov *provider.Router,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		service:  service,
		store:    store,
		registry: reg,
		provider: prov,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/query", h.answerQuery)
		r.Get("/patients", h.listPatients)

		// Tool catalog routes
		r.Get("/tools", h.listTools)
		r.Get("/tools/{name}", h.getTool)
		r.Put("/tools/{name}/enabled", h.setToolEnabled)
		r.Post("/tools/{name}/invoke", h.invokeTool)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	patientCount := 0
	if patients, err := h.store.Patients(); err == nil {
		patientCount = len(patients)
	}
	status := "ok"
	if !h.store.Ready() {
		status = "loading"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"ready":    h.store.Ready(),
		"provider": h.provider.DefaultID(),
		"patients": patientCount,
	})
}

type queryRequest struct {
	Question string `json:"question"`
	Patient  string `json:"patient,omitempty"`
}

func (h *Handler) answerQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	env, err := h.service.Answer(r.Context(), req.Question, req.Patient)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) listPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.store.Patients()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

func (h *Handler) listTools(w http.ResponseWriter, r *http.Request) {
	includeDisabled := r.URL.Query().Get("include_disabled") == "1"
	writeJSON(w, http.StatusOK, h.registry.List(includeDisabled))
}

func (h *Handler) getTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	def, ok := h.registry.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tool not found"})
		return
	}
	writeJSON(w, http.StatusOK, def)
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) setToolEnabled(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.registry.SetEnabled(name, req.Enabled); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	def, _ := h.registry.Get(name)
	writeJSON(w, http.StatusOK, def)
}

type invokeRequest struct {
	Args map[string]any `json:"args"`
}

func (h *Handler) invokeTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.service.Invoke(r.Context(), name, req.Args)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeError maps service errors to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var valErr *registry.ValidationError
	switch {
	case errors.Is(err, record.ErrNotReady):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": valErr.Error()})
	case errors.Is(err, registry.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	case errors.Is(err, assistant.ErrDownstream):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
