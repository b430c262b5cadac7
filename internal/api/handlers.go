// File: internal/api/handlers.go
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/observability"
	"github.com/xkilldash9x/specter/internal/service"
	"github.com/xkilldash9x/specter/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

// Service is what the handlers call into.
type Service interface {
	CreateInvestigation(ctx context.Context, req service.CreateRequest) (*schemas.Investigation, error)
	GetInvestigation(ctx context.Context, id string) (*schemas.Investigation, error)
	Start(ctx context.Context, id string) error
	Tick(ctx context.Context, id string) (schemas.TickResult, error)
	Regenerate(ctx context.Context, id string) error
	Events(ctx context.Context, id string, after int64, limit int) ([]schemas.ProgressEvent, error)
}

// Response is the envelope of every JSON reply.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// EventsPage is the reply of the events endpoint. LastID is the cursor for
// the next poll and equals the after parameter when nothing new arrived.
type EventsPage struct {
	Events []schemas.ProgressEvent `json:"events"`
	LastID int64                   `json:"last_id"`
}

// Handlers serves the investigation API.
type Handlers struct {
	log *zap.Logger
	svc Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, svc Service) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{log: logger.Named("api"), svc: svc}
}

// RegisterRoutes mounts /healthz and the /api/v1 routes on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api/v1/investigations", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Get("/events", h.HandleEvents)
			r.Post("/start", h.HandleStart)
			r.Post("/tick", h.HandleTick)
			r.Post("/regenerate", h.HandleRegenerate)
		})
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	inv, err := h.svc.CreateInvestigation(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusCreated, inv)
}

func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.GetInvestigation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, inv)
}

func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Start(r.Context(), id); err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	inv, err := h.svc.GetInvestigation(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, inv)
}

// HandleTick answers 202 when another tick holds the lock.
func (h *Handlers) HandleTick(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.svc.Tick(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	if res.Skipped {
		h.respondWithStatus(w, http.StatusAccepted, "skipped", res)
		return
	}
	h.log.Debug("Tick served", observability.Investigation(id),
		zap.String("status", string(res.Status)), zap.String("ran_step", string(res.RanStep)))
	h.respondWithSuccess(w, http.StatusOK, res)
}

func (h *Handlers) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Regenerate(r.Context(), id); err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	inv, err := h.svc.GetInvestigation(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, inv)
}

func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	after, err := queryInt(r, "after")
	if err != nil || after < 0 {
		h.respondWithError(w, http.StatusBadRequest, "after must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil || limit < 0 {
		h.respondWithError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	events, err := h.svc.Events(r.Context(), chi.URLParam(r, "id"), after, int(limit))
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	page := EventsPage{Events: events, LastID: after}
	if n := len(events); n > 0 {
		page.LastID = events[n-1].ID
	}
	h.respondWithSuccess(w, http.StatusOK, page)
}

func queryInt(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// respondWithServiceError maps service errors onto status codes.
func (h *Handlers) respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		h.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		h.respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.respondWithError(w, http.StatusGatewayTimeout, err.Error())
	default:
		h.log.Error("Request failed", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSON(w, statusCode, Response{Status: "error", Error: message})
}

func (h *Handlers) respondWithSuccess(w http.ResponseWriter, statusCode int, data any) {
	h.respondWithStatus(w, statusCode, "success", data)
}

func (h *Handlers) respondWithStatus(w http.ResponseWriter, statusCode int, status string, data any) {
	h.writeJSON(w, statusCode, Response{Status: status, Data: data})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
