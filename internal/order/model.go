package order

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Transaction is one buyer-seller-product agreement. PricePerUnit is a
// snapshot taken at creation; it never tracks the live catalog price.
// Amounts are whole FCFA.
type Transaction struct {
	ID                 uuid.UUID  `json:"id"`
	BuyerID            uuid.UUID  `json:"buyerId"`
	SellerID           uuid.UUID  `json:"sellerId"`
	ProductID          uuid.UUID  `json:"productId"`
	Quantity           int        `json:"quantity"`
	PricePerUnit       int64      `json:"pricePerUnit"`
	TotalAmount        int64      `json:"totalAmount"`
	Status             Status     `json:"status"`
	CancellationReason string     `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
}

// RecomputeTotal keeps totalAmount derivable from quantity × pricePerUnit.
// Called before every persistence of quantity or price.
func (t *Transaction) RecomputeTotal() {
	t.TotalAmount = int64(t.Quantity) * t.PricePerUnit
}
