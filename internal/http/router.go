package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(th *TransactionHandler, wh *WebhookHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)

		r.Route("/api/transactions", func(r chi.Router) {
			r.Post("/", th.Create)
			r.Get("/{transactionId}", th.Get)
			r.Post("/{transactionId}/complete", th.Complete)
			r.Post("/{transactionId}/cancel", th.Cancel)
		})

		r.Get("/api/users/{userId}/transactions", th.ListByUser)
		r.Get("/api/notifications", th.ListNotifications)

		r.Route("/api/webhooks", func(r chi.Router) {
			r.Get("/events", wh.Events)
			r.Post("/", wh.Register)
			r.Delete("/{webhookId}", wh.Deactivate)
			r.Get("/{webhookId}/logs", wh.Logs)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "agriconnect",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
