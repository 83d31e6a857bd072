package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Stealph7/AgriConnect/internal/inventory"
	"github.com/Stealph7/AgriConnect/internal/notify"
	"github.com/Stealph7/AgriConnect/internal/user"
)

var (
	// ErrIllegalTransition is returned for any transition attempt out of a
	// terminal state. No side effect is produced.
	ErrIllegalTransition = errors.New("illegal transaction transition")
	// ErrForbidden is returned when the acting user lacks authority over the
	// transaction.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidQuantity is returned for non-positive order quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Ledger is the slice of the inventory ledger the state machine drives.
type Ledger interface {
	ReserveWithTx(ctx context.Context, tx pgx.Tx, orderID, productID uuid.UUID, quantity int) (inventory.Reservation, inventory.Product, error)
	ReleaseWithTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error
	CommitWithTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (inventory.Product, error)
}

// Dispatcher delivers the side effects of a committed transition.
type Dispatcher interface {
	Dispatch(ctx context.Context, set notify.EnvelopeSet)
}

// TxBeginner opens the transaction that spans reservation and persistence.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Service is the order state machine: pending on creation, then exactly one
// of completed or cancelled. Inventory moves in the same database transaction
// as the status flip; envelopes are only built once that transaction has
// committed.
type Service struct {
	pool       TxBeginner
	orders     Repository
	ledger     Ledger
	users      user.Directory
	dispatcher Dispatcher
	logger     *log.Logger

	largeTransactionThreshold int64
}

func NewService(
	pool TxBeginner,
	orders Repository,
	ledger Ledger,
	users user.Directory,
	dispatcher Dispatcher,
	largeTransactionThreshold int64,
	logger *log.Logger,
) *Service {
	return &Service{
		pool:                      pool,
		orders:                    orders,
		ledger:                    ledger,
		users:                     users,
		dispatcher:                dispatcher,
		largeTransactionThreshold: largeTransactionThreshold,
		logger:                    logger,
	}
}

// Create reserves stock and persists a new pending transaction as one unit of
// work. If the insert fails the reservation rolls back with it, so there is
// never an orphaned decrement. Insufficient stock surfaces to the caller and
// is never retried here.
func (s *Service) Create(ctx context.Context, buyerID, productID uuid.UUID, quantity int) (*Transaction, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if _, err := s.users.Get(ctx, buyerID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("load buyer: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderID := uuid.New()
	_, prod, err := s.ledger.ReserveWithTx(ctx, tx, orderID, productID, quantity)
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		ID:           orderID,
		BuyerID:      buyerID,
		SellerID:     prod.SellerID,
		ProductID:    productID,
		Quantity:     quantity,
		PricePerUnit: prod.Price,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.orders.CreateWithTx(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}

	s.dispatch(ctx, t, prod, notify.KindCreated, "")
	return t, nil
}

// Complete finalizes a pending transaction. Only the seller or an admin may
// complete; the reservation is committed in the same database transaction.
func (s *Service) Complete(ctx context.Context, id, actorID uuid.UUID) (*Transaction, error) {
	t, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != t.SellerID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if t.Status.Terminal() {
		return nil, ErrIllegalTransition
	}

	now := time.Now().UTC()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	flipped, err := s.orders.MarkCompletedWithTx(ctx, tx, t.ID, now)
	if err != nil {
		return nil, err
	}
	if !flipped {
		// lost the race against a concurrent complete/cancel
		return nil, ErrIllegalTransition
	}
	if err := s.ledger.CommitWithTx(ctx, tx, t.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete: %w", err)
	}

	t.Status = StatusCompleted
	t.CompletedAt = &now

	prod, err := s.ledger.GetProduct(ctx, t.ProductID)
	if err != nil {
		s.logger.Printf("post-complete product read failed id=%s: %v", t.ProductID, err)
		prod = inventory.Product{ID: t.ProductID, SellerID: t.SellerID, Price: t.PricePerUnit}
	}
	s.dispatch(ctx, t, prod, notify.KindCompleted, "")
	return t, nil
}

// Cancel releases the reservation of a pending transaction. Buyer, seller or
// an admin may cancel; the reason is stored with the transaction.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID, reason string) (*Transaction, error) {
	t, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != t.BuyerID && actor.ID != t.SellerID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if t.Status.Terminal() {
		return nil, ErrIllegalTransition
	}

	now := time.Now().UTC()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	flipped, err := s.orders.MarkCancelledWithTx(ctx, tx, t.ID, reason, now)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, ErrIllegalTransition
	}
	if err := s.ledger.ReleaseWithTx(ctx, tx, t.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	t.Status = StatusCancelled
	t.CancelledAt = &now
	t.CancellationReason = reason

	prod, err := s.ledger.GetProduct(ctx, t.ProductID)
	if err != nil {
		s.logger.Printf("post-cancel product read failed id=%s: %v", t.ProductID, err)
		prod = inventory.Product{ID: t.ProductID, SellerID: t.SellerID, Price: t.PricePerUnit}
	}
	s.dispatch(ctx, t, prod, notify.KindCancelled, reason)
	return t, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.orders.GetByID(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]Transaction, error) {
	return s.orders.ListByUser(ctx, userID)
}

func (s *Service) actor(ctx context.Context, actorID uuid.UUID) (user.User, error) {
	actor, err := s.users.Get(ctx, actorID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, ErrForbidden
		}
		return user.User{}, fmt.Errorf("load actor: %w", err)
	}
	return actor, nil
}

// dispatch builds and hands over the side effects of an already committed
// transition. It never returns an error to the business caller.
func (s *Service) dispatch(ctx context.Context, t *Transaction, prod inventory.Product, kind notify.Kind, reason string) {
	buyer, err := s.users.Get(ctx, t.BuyerID)
	if err != nil {
		s.logger.Printf("dispatch: load buyer %s failed: %v", t.BuyerID, err)
	}
	seller, err := s.users.Get(ctx, t.SellerID)
	if err != nil {
		s.logger.Printf("dispatch: load seller %s failed: %v", t.SellerID, err)
	}
	buyer.ID = t.BuyerID
	seller.ID = t.SellerID

	var admins []user.User
	if kind == notify.KindCompleted && t.TotalAmount >= s.largeTransactionThreshold {
		if admins, err = s.users.Admins(ctx); err != nil {
			s.logger.Printf("dispatch: load admins failed: %v", err)
		}
	}

	set := notify.BuildEnvelopes(notify.BuildInput{
		Kind:                      kind,
		OrderID:                   t.ID,
		Quantity:                  t.Quantity,
		PricePerUnit:              t.PricePerUnit,
		TotalAmount:               t.TotalAmount,
		Reason:                    reason,
		Product:                   prod,
		Buyer:                     buyer,
		Seller:                    seller,
		Admins:                    admins,
		LargeTransactionThreshold: s.largeTransactionThreshold,
	})
	s.dispatcher.Dispatch(ctx, set)
}
