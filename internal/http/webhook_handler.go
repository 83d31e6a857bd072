package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Stealph7/AgriConnect/internal/webhook"
)

// WebhookRegistry is the slice of the webhook repository the handlers use.
type WebhookRegistry interface {
	Register(ctx context.Context, ownerID uuid.UUID, url string, events []string, description string) (webhook.Endpoint, error)
	Deactivate(ctx context.Context, id, ownerID uuid.UUID) error
	GetEndpoint(ctx context.Context, id uuid.UUID) (webhook.Endpoint, error)
	Logs(ctx context.Context, endpointID uuid.UUID, limit int) ([]webhook.DeliveryLog, error)
}

type WebhookHandler struct {
	registry WebhookRegistry
}

func NewWebhookHandler(registry WebhookRegistry) *WebhookHandler {
	return &WebhookHandler{registry: registry}
}

type registerWebhookRequest struct {
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	Description string   `json:"description"`
}

type registerWebhookResponse struct {
	webhook.Endpoint
	// Secret is only ever revealed here, in the registration response.
	Secret string `json:"secret"`
}

func (h *WebhookHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateRegistration(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e, err := h.registry.Register(r.Context(), userID(r), req.URL, req.Events, req.Description)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, registerWebhookResponse{Endpoint: e, Secret: e.Secret})
}

func validateRegistration(req registerWebhookRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("url must be a valid http(s) URL")
	}
	if len(req.Events) == 0 {
		return errors.New("at least one event is required")
	}
	catalog := webhook.AvailableEvents()
	for _, ev := range req.Events {
		if _, ok := catalog[ev]; !ok {
			return errors.New("unknown event " + strconv.Quote(ev))
		}
	}
	return nil
}

func (h *WebhookHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "webhookId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	if err := h.registry.Deactivate(r.Context(), id, userID(r)); err != nil {
		if errors.Is(err, webhook.ErrEndpointNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "webhookId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	e, err := h.registry.GetEndpoint(r.Context(), id)
	if err != nil {
		if errors.Is(err, webhook.ErrEndpointNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if e.OwnerID != userID(r) {
		writeError(w, http.StatusForbidden, "not allowed")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	logs, err := h.registry.Logs(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if logs == nil {
		logs = []webhook.DeliveryLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *WebhookHandler) Events(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, webhook.AvailableEvents())
}
