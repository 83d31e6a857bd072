package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Stealph7/AgriConnect/internal/inventory"
	"github.com/Stealph7/AgriConnect/internal/notify"
	"github.com/Stealph7/AgriConnect/internal/order"
	"github.com/Stealph7/AgriConnect/internal/user"
)

// TransactionService is the slice of the order service the handlers use.
type TransactionService interface {
	Create(ctx context.Context, buyerID, productID uuid.UUID, quantity int) (*order.Transaction, error)
	Complete(ctx context.Context, id, actorID uuid.UUID) (*order.Transaction, error)
	Cancel(ctx context.Context, id, actorID uuid.UUID, reason string) (*order.Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*order.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]order.Transaction, error)
}

// NotificationLister reads a user's stored notifications.
type NotificationLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]notify.Notification, error)
}

type TransactionHandler struct {
	svc           TransactionService
	notifications NotificationLister
}

func NewTransactionHandler(svc TransactionService, notifications NotificationLister) *TransactionHandler {
	return &TransactionHandler{svc: svc, notifications: notifications}
}

type createTransactionRequest struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "missing productId")
		return
	}

	t, err := h.svc.Create(r.Context(), userID(r), req.ProductID, req.Quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TransactionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "transactionId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	t, err := h.svc.Complete(r.Context(), id, userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type cancelTransactionRequest struct {
	Reason string `json:"reason"`
}

func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "transactionId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req cancelTransactionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	t, err := h.svc.Cancel(r.Context(), id, userID(r), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "transactionId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	t, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TransactionHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	ts, err := h.svc.ListByUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ts == nil {
		ts = []order.Transaction{}
	}
	writeJSON(w, http.StatusOK, ts)
}

func (h *TransactionHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ns, err := h.notifications.ListByUser(r.Context(), userID(r), 50)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ns == nil {
		ns = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, ns)
}

// writeServiceError maps domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrForbidden):
		writeError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, order.ErrNotFound), errors.Is(err, inventory.ErrNotFound), errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusUnprocessableEntity, "insufficient stock")
	case errors.Is(err, order.ErrIllegalTransition):
		writeError(w, http.StatusUnprocessableEntity, "transaction is not pending")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
