package inventory

import (
	"time"

	"github.com/google/uuid"
)

type ProductStatus string

const (
	ProductPending  ProductStatus = "pending"
	ProductApproved ProductStatus = "approved"
	ProductRejected ProductStatus = "rejected"
	ProductSold     ProductStatus = "sold"
)

// Product is the inventory-relevant slice of the catalog entity. Prices are
// whole FCFA. Quantity is only ever mutated through the ledger.
type Product struct {
	ID                uuid.UUID     `json:"id"`
	SellerID          uuid.UUID     `json:"sellerId"`
	Name              string        `json:"name"`
	Unit              string        `json:"unit"`
	Price             int64         `json:"price"`
	AvailableQuantity int           `json:"availableQuantity"`
	InitialQuantity   int           `json:"initialQuantity"`
	Status            ProductStatus `json:"status"`
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationCommitted ReservationStatus = "COMMITTED"
)

// Reservation records that a quantity of stock has been tentatively removed
// from availability pending commit or release. One reservation per order.
type Reservation struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	ProductID  uuid.UUID
	Quantity   int
	Status     ReservationStatus
	ReservedAt time.Time
}
