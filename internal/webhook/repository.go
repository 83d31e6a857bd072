package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrEndpointNotFound = errors.New("webhook endpoint not found")

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Repository struct {
	pool              DBPool
	defaultMaxRetries int
}

func NewRepository(pool DBPool, defaultMaxRetries int) *Repository {
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = 5
	}
	return &Repository{pool: pool, defaultMaxRetries: defaultMaxRetries}
}

// Register stores a new endpoint with a freshly generated secret. The secret
// is returned exactly once; afterwards it only ever signs payloads.
func (r *Repository) Register(ctx context.Context, ownerID uuid.UUID, url string, events []string, description string) (Endpoint, error) {
	secret, err := NewSecret()
	if err != nil {
		return Endpoint{}, fmt.Errorf("generate secret: %w", err)
	}

	e := Endpoint{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		URL:         url,
		Events:      events,
		Secret:      secret,
		Description: description,
		IsActive:    true,
		MaxRetries:  r.defaultMaxRetries,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO webhook_endpoints (id, owner_id, url, events, secret, description, is_active, max_retries, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.OwnerID, e.URL, e.Events, e.Secret, e.Description, e.IsActive, e.MaxRetries, e.CreatedAt)
	if err != nil {
		return Endpoint{}, fmt.Errorf("insert endpoint: %w", err)
	}
	return e, nil
}

func (r *Repository) Deactivate(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_endpoints SET is_active = FALSE
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deactivate endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

func (r *Repository) GetEndpoint(ctx context.Context, id uuid.UUID) (Endpoint, error) {
	var e Endpoint
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, url, events, secret, description, is_active, max_retries, created_at
		FROM webhook_endpoints WHERE id = $1
	`, id).Scan(&e.ID, &e.OwnerID, &e.URL, &e.Events, &e.Secret, &e.Description, &e.IsActive, &e.MaxRetries, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Endpoint{}, ErrEndpointNotFound
		}
		return Endpoint{}, fmt.Errorf("select endpoint: %w", err)
	}
	return e, nil
}

// EnqueueEvent schedules one delivery per active endpoint subscribed to the
// event and owned by one of the given users. The payload is serialized here,
// once, so every retry carries identical bytes.
func (r *Repository) EnqueueEvent(ctx context.Context, event string, owners []uuid.UUID, data map[string]any) error {
	if len(owners) == 0 {
		return nil
	}
	ownerIDs := make([]string, 0, len(owners))
	for _, id := range owners {
		ownerIDs = append(ownerIDs, id.String())
	}

	payload, err := json.Marshal(Payload{
		Event:     event,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id FROM webhook_endpoints
		WHERE is_active AND $1 = ANY(events) AND owner_id = ANY($2::uuid[])
	`, event, ownerIDs)
	if err != nil {
		return fmt.Errorf("select endpoints: %w", err)
	}
	defer rows.Close()

	var endpointIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan endpoint id: %w", err)
		}
		endpointIDs = append(endpointIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, endpointID := range endpointIDs {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO webhook_deliveries (id, endpoint_id, event, payload, status, next_retry_at)
			VALUES ($1, $2, $3, $4, 'scheduled', now())
		`, uuid.New(), endpointID, event, payload)
		if err != nil {
			return fmt.Errorf("enqueue delivery: %w", err)
		}
	}
	return nil
}

// ClaimDue atomically claims a batch of due deliveries for this worker.
// SKIP LOCKED keeps concurrent workers off each other's rows, and because a
// delivery is a single row, attempt n+1 for an event instance can never start
// before attempt n's outcome is recorded. Rows stuck in 'sending' (a worker
// died mid-attempt) become claimable again after ten minutes.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]Delivery, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT d.id, d.endpoint_id, d.event, d.payload, d.status, d.attempt_count, d.next_retry_at, d.created_at,
		       e.url, e.secret, e.max_retries
		FROM webhook_deliveries d
		JOIN webhook_endpoints e ON e.id = d.endpoint_id
		WHERE (d.status = 'scheduled' AND d.next_retry_at <= now())
		   OR (d.status = 'sending' AND d.updated_at <= now() - interval '10 minutes')
		ORDER BY d.next_retry_at
		FOR UPDATE OF d SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select due deliveries: %w", err)
	}

	var claimed []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(
			&d.ID, &d.EndpointID, &d.Event, &d.Payload, &d.Status, &d.AttemptCount, &d.NextRetryAt, &d.CreatedAt,
			&d.URL, &d.Secret, &d.MaxRetries,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		claimed = append(claimed, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, d := range claimed {
		if _, err := tx.Exec(ctx, `
			UPDATE webhook_deliveries SET status = 'sending', updated_at = now() WHERE id = $1
		`, d.ID); err != nil {
			return nil, fmt.Errorf("claim delivery: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

// RecordAttempt appends the audit row for one attempt and reschedules,
// completes or exhausts the delivery. Every attempt lands in the log: no
// outcome is ever dropped silently.
func (r *Repository) RecordAttempt(ctx context.Context, d Delivery, responseCode *int, success bool, sendErr string) error {
	attempt := d.AttemptCount + 1

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO webhook_delivery_logs
			(id, delivery_id, endpoint_id, event, payload_hash, response_code, success, attempt, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`, uuid.New(), d.ID, d.EndpointID, d.Event, PayloadHash(d.Payload), responseCode, success, attempt, sendErr)
	if err != nil {
		return fmt.Errorf("insert delivery log: %w", err)
	}

	switch {
	case success:
		_, err = tx.Exec(ctx, `
			UPDATE webhook_deliveries
			SET status = 'succeeded', attempt_count = $2, updated_at = now()
			WHERE id = $1
		`, d.ID, attempt)
	case attempt > d.MaxRetries:
		_, err = tx.Exec(ctx, `
			UPDATE webhook_deliveries
			SET status = 'exhausted', attempt_count = $2, updated_at = now()
			WHERE id = $1
		`, d.ID, attempt)
	default:
		_, err = tx.Exec(ctx, `
			UPDATE webhook_deliveries
			SET status = 'scheduled', attempt_count = $2, next_retry_at = now() + $3, updated_at = now()
			WHERE id = $1
		`, d.ID, attempt, Backoff(attempt-1))
	}
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}

	return tx.Commit(ctx)
}

// Logs returns the newest audit rows for one endpoint.
func (r *Repository) Logs(ctx context.Context, endpointID uuid.UUID, limit int) ([]DeliveryLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, delivery_id, endpoint_id, event, payload_hash, response_code, success, attempt, COALESCE(error, ''), created_at
		FROM webhook_delivery_logs
		WHERE endpoint_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("select delivery logs: %w", err)
	}
	defer rows.Close()

	var out []DeliveryLog
	for rows.Next() {
		var l DeliveryLog
		if err := rows.Scan(&l.ID, &l.DeliveryID, &l.EndpointID, &l.Event, &l.PayloadHash,
			&l.ResponseCode, &l.Success, &l.Attempt, &l.Error, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
