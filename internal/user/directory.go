package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("user not found")

type Role string

const (
	RoleProducteur  Role = "producteur"
	RoleAcheteur    Role = "acheteur"
	RoleCooperative Role = "cooperative"
	RoleAdmin       Role = "admin"
)

// User is the slice of the account profile the fulfillment engine needs.
// Authentication and profile management live elsewhere; this package only
// reads.
type User struct {
	ID       uuid.UUID
	Name     string
	Phone    string
	Role     Role
	SMSOptIn bool
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (User, error)
	Admins(ctx context.Context) ([]User, error)
}

// Querier matches the methods from *pgxpool.Pool that the directory uses.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PostgresDirectory struct {
	pool Querier
}

func NewPostgresDirectory(pool Querier) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) Get(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, phone, role, sms_opt_in
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Phone, &u.Role, &u.SMSOptIn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (d *PostgresDirectory) Admins(ctx context.Context) ([]User, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, name, phone, role, sms_opt_in
		FROM users WHERE role = 'admin' ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("select admins: %w", err)
	}
	defer rows.Close()

	var admins []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Phone, &u.Role, &u.SMSOptIn); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		admins = append(admins, u)
	}
	return admins, rows.Err()
}
