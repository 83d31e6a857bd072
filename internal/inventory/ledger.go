package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// executor is the subset shared by DBPool and pgx.Tx so ledger operations can
// run either standalone or inside a caller-owned transaction.
type executor interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Ledger owns product availability. Reserve is a single conditional update,
// so two buyers racing for the last units can never both win: the losing
// update simply matches zero rows.
type Ledger struct {
	pool DBPool
}

func NewLedger(pool DBPool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return getProduct(ctx, l.pool, id)
}

func getProduct(ctx context.Context, q executor, id uuid.UUID) (Product, error) {
	var p Product
	err := q.QueryRow(ctx, `
		SELECT id, seller_id, name, unit, price, available_quantity, initial_quantity, status
		FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.SellerID, &p.Name, &p.Unit, &p.Price, &p.AvailableQuantity, &p.InitialQuantity, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

// Reserve atomically checks and decrements availability, recording a
// reservation keyed by orderID.
func (l *Ledger) Reserve(ctx context.Context, orderID, productID uuid.UUID, quantity int) (Reservation, Product, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Reservation{}, Product{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, prod, err := l.ReserveWithTx(ctx, tx, orderID, productID, quantity)
	if err != nil {
		return Reservation{}, Product{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Reservation{}, Product{}, fmt.Errorf("commit reserve: %w", err)
	}
	return res, prod, nil
}

// ReserveWithTx is Reserve inside a caller-owned transaction, used by order
// creation so the reservation and the order row commit or roll back together.
func (l *Ledger) ReserveWithTx(ctx context.Context, tx pgx.Tx, orderID, productID uuid.UUID, quantity int) (Reservation, Product, error) {
	if quantity <= 0 {
		return Reservation{}, Product{}, fmt.Errorf("quantity must be positive")
	}

	var p Product
	err := tx.QueryRow(ctx, `
		UPDATE products
		SET available_quantity = available_quantity - $2, updated_at = now()
		WHERE id = $1 AND status = 'approved' AND available_quantity >= $2
		RETURNING id, seller_id, name, unit, price, available_quantity, initial_quantity, status
	`, productID, quantity).Scan(&p.ID, &p.SellerID, &p.Name, &p.Unit, &p.Price, &p.AvailableQuantity, &p.InitialQuantity, &p.Status)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, Product{}, fmt.Errorf("decrement stock: %w", err)
		}
		// Zero rows matched: either the product does not exist or it cannot
		// satisfy the request right now.
		if _, getErr := getProduct(ctx, tx, productID); getErr != nil {
			return Reservation{}, Product{}, getErr
		}
		return Reservation{}, Product{}, ErrInsufficientStock
	}

	res := Reservation{
		ID:         uuid.New(),
		OrderID:    orderID,
		ProductID:  productID,
		Quantity:   quantity,
		Status:     ReservationActive,
		ReservedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO inventory_reservations (id, order_id, product_id, quantity, status, reserved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, res.ID, res.OrderID, res.ProductID, res.Quantity, res.Status, res.ReservedAt)
	if err != nil {
		return Reservation{}, Product{}, fmt.Errorf("insert reservation: %w", err)
	}

	return res, p, nil
}

// Release restores availability for a pending reservation. Releasing a
// reservation that was already released or committed is a no-op, so callers
// retrying after a timeout cannot double-credit stock.
func (l *Ledger) Release(ctx context.Context, orderID uuid.UUID) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := l.ReleaseWithTx(ctx, tx, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *Ledger) ReleaseWithTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	var productID uuid.UUID
	var quantity int
	err := tx.QueryRow(ctx, `
		UPDATE inventory_reservations
		SET status = 'RELEASED', released_at = now()
		WHERE order_id = $1 AND status = 'ACTIVE'
		RETURNING product_id, quantity
	`, orderID).Scan(&productID, &quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // already released or committed
		}
		return fmt.Errorf("release reservation: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE products
		SET available_quantity = available_quantity + $2,
		    status = CASE WHEN status = 'sold' THEN 'approved' ELSE status END,
		    updated_at = now()
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}

// Commit finalizes the decrement taken at reserve time. The quantity does not
// change; the product is flipped to sold once availability reaches zero.
func (l *Ledger) Commit(ctx context.Context, orderID uuid.UUID) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := l.CommitWithTx(ctx, tx, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *Ledger) CommitWithTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	var productID uuid.UUID
	err := tx.QueryRow(ctx, `
		UPDATE inventory_reservations
		SET status = 'COMMITTED'
		WHERE order_id = $1 AND status = 'ACTIVE'
		RETURNING product_id
	`, orderID).Scan(&productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // already committed or released
		}
		return fmt.Errorf("commit reservation: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE products
		SET status = 'sold', updated_at = now()
		WHERE id = $1 AND available_quantity = 0 AND status = 'approved'
	`, productID)
	if err != nil {
		return fmt.Errorf("mark sold: %w", err)
	}
	return nil
}
