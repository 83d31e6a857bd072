package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("transaction not found")

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Repository interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Transaction, error)
	MarkCompletedWithTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error)
	MarkCancelledWithTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) (bool, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, t *Transaction) error {
	t.RecomputeTotal()
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions
			(id, buyer_id, seller_id, product_id, quantity, price_per_unit, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.BuyerID, t.SellerID, t.ProductID, t.Quantity, t.PricePerUnit, t.TotalAmount, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, buyer_id, seller_id, product_id, quantity, price_per_unit, total_amount,
	       status, COALESCE(cancellation_reason, ''), created_at, completed_at, cancelled_at
	FROM transactions
`

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	var t Transaction
	err := r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id).Scan(
		&t.ID, &t.BuyerID, &t.SellerID, &t.ProductID, &t.Quantity, &t.PricePerUnit,
		&t.TotalAmount, &t.Status, &t.CancellationReason, &t.CreatedAt, &t.CompletedAt, &t.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select transaction: %w", err)
	}
	return &t, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, selectColumns+`
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(
			&t.ID, &t.BuyerID, &t.SellerID, &t.ProductID, &t.Quantity, &t.PricePerUnit,
			&t.TotalAmount, &t.Status, &t.CancellationReason, &t.CreatedAt, &t.CompletedAt, &t.CancelledAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkCompletedWithTx flips a pending transaction to completed. The WHERE
// clause is the transition guard: zero rows affected means the transaction
// was not pending anymore.
func (r *PostgresRepository) MarkCompletedWithTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) MarkCancelledWithTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET status = 'cancelled', cancellation_reason = NULLIF($2, ''), cancelled_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, reason, at)
	if err != nil {
		return false, fmt.Errorf("mark cancelled: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
