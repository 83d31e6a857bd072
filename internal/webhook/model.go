package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the fulfillment engine. Endpoints subscribe to a
// subset of these.
const (
	EventTransactionCreated   = "transaction.created"
	EventTransactionCompleted = "transaction.completed"
	EventTransactionCancelled = "transaction.cancelled"
)

// AvailableEvents is the catalog exposed to endpoint owners.
func AvailableEvents() map[string]string {
	return map[string]string{
		EventTransactionCreated:   "New transaction created",
		EventTransactionCompleted: "Transaction completed",
		EventTransactionCancelled: "Transaction cancelled",
	}
}

// Endpoint is a registered webhook receiver owned by one user.
type Endpoint struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"ownerId"`
	URL         string    `json:"url"`
	Events      []string  `json:"events"`
	Secret      string    `json:"-"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"isActive"`
	MaxRetries  int       `json:"maxRetries"`
	CreatedAt   time.Time `json:"createdAt"`
}

type DeliveryStatus string

const (
	DeliveryScheduled DeliveryStatus = "scheduled"
	DeliverySending   DeliveryStatus = "sending"
	DeliverySucceeded DeliveryStatus = "succeeded"
	DeliveryExhausted DeliveryStatus = "exhausted"
)

// Delivery is one event instance bound for one endpoint. It lives in the
// work queue until it succeeds or exhausts its retries; NextRetryAt is the
// scheduling key, so pending deliveries survive process restarts.
type Delivery struct {
	ID           uuid.UUID
	EndpointID   uuid.UUID
	Event        string
	Payload      []byte
	Status       DeliveryStatus
	AttemptCount int
	NextRetryAt  time.Time
	CreatedAt    time.Time

	// Joined from the endpoint at claim time.
	URL        string
	Secret     string
	MaxRetries int
}

// DeliveryLog is the append-only audit record of one send attempt. Only the
// delivery worker writes rows; nothing mutates them afterwards.
type DeliveryLog struct {
	ID           uuid.UUID  `json:"id"`
	DeliveryID   uuid.UUID  `json:"deliveryId"`
	EndpointID   uuid.UUID  `json:"endpointId"`
	Event        string     `json:"event"`
	PayloadHash  string     `json:"payloadHash"`
	ResponseCode *int       `json:"responseCode,omitempty"`
	Success      bool       `json:"success"`
	Attempt      int        `json:"attempt"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Payload is the wire body POSTed to endpoints. It is marshaled exactly once
// per event instance, at enqueue time, so every retry signs and sends the
// same bytes.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}
