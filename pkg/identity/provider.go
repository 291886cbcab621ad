package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Provider resolves a user id to its identity record.
type Provider interface {
	Resolve(ctx context.Context, userID string) (Identity, error)
}

type postgresProvider struct {
	pool *pgxpool.Pool
}

func NewPostgresProvider(pool *pgxpool.Pool) Provider {
	return &postgresProvider{pool: pool}
}

func (p *postgresProvider) Resolve(ctx context.Context, userID string) (Identity, error) {
	if userID == "" {
		return Identity{}, ErrIdentityUnavailable
	}

	query := `SELECT user_id, display_name, email, email_verified, is_banned
	          FROM profiles
	          WHERE user_id = $1`

	row := p.pool.QueryRow(ctx, query, userID)

	var id Identity
	if err := row.Scan(&id.ID, &id.DisplayName, &id.Email, &id.EmailVerified, &id.Banned); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrIdentityUnavailable
		}
		return Identity{}, err
	}

	return id, nil
}
