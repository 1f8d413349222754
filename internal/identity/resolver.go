package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

// User is the display projection of an account: enough to address and
// label the parties of an appointment, nothing more.
type User struct {
	ID   uuid.UUID
	Name string
	Role string
}

// Resolver looks up display identity for a user ID. Authentication and
// account management live elsewhere; this core only reads.
type Resolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (*User, error)
}

type PgResolver struct {
	pool *pgxpool.Pool
}

func NewPgResolver(pool *pgxpool.Pool) *PgResolver {
	return &PgResolver{pool: pool}
}

func (r *PgResolver) Resolve(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, role
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return &u, nil
}
