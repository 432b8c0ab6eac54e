package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"campaign_scheduler/internal/domain"
)

type AccountStore struct {
	db *sqlx.DB
}

func NewAccountStore(db *sqlx.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, a *domain.Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO accounts (
			id, username, timezone, access_token, refresh_token,
			token_expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		a.ID, a.Username, a.Timezone, a.AccessToken, a.RefreshToken,
		a.TokenExpiresAt, a.CreatedAt,
	)
	return err
}

func (s *AccountStore) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, username, timezone, access_token, refresh_token,
		       token_expires_at, created_at
		FROM accounts
		WHERE id = $1`

	var a domain.Account
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, id).Scan(
		&a.ID, &a.Username, &a.Timezone, &a.AccessToken, &a.RefreshToken,
		&a.TokenExpiresAt, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateTokens replaces the credential pair in one statement so a
// refreshed pair is never half-persisted.
func (s *AccountStore) UpdateTokens(ctx context.Context, id uuid.UUID, pair *domain.TokenPair) error {
	query := `
		UPDATE accounts
		SET access_token = $1, refresh_token = $2, token_expires_at = $3
		WHERE id = $4`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		pair.AccessToken, pair.RefreshToken, pair.ExpiresAt, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
