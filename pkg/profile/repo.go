package profile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrProfileNotFound = errors.New("profile not found")

type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	UpdateLastSeen(ctx context.Context, userID string) error
	SetTyping(ctx context.Context, userID string, conversationID *string) error
}

type postgresProfileRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &postgresProfileRepository{pool: pool}
}

func (r *postgresProfileRepository) GetProfile(ctx context.Context, userID string) (Profile, error) {
	query := `SELECT user_id, display_name, email, email_verified, is_banned, typing_in, last_seen, created_at
	          FROM profiles
	          WHERE user_id = $1`

	row := r.pool.QueryRow(ctx, query, userID)

	var p Profile
	if err := row.Scan(&p.UserID, &p.DisplayName, &p.Email, &p.EmailVerified, &p.Banned, &p.TypingIn, &p.LastSeen, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, err
	}

	return p, nil
}

func (r *postgresProfileRepository) UpdateLastSeen(ctx context.Context, userID string) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE profiles SET last_seen = now() WHERE user_id = $1", userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *postgresProfileRepository) SetTyping(ctx context.Context, userID string, conversationID *string) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE profiles SET typing_in = $2 WHERE user_id = $1", userID, conversationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
