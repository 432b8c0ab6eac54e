// Package token keeps account access tokens fresh. The manager is the
// only writer of token state; everything else reads through it.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"campaign_scheduler/internal/domain"
)

// AccountStore is the slice of account persistence the manager needs.
type AccountStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	UpdateTokens(ctx context.Context, id uuid.UUID, pair *domain.TokenPair) error
}

// Refresher performs the OAuth refresh-token exchange.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
}

type Manager struct {
	accounts  AccountStore
	refresher Refresher
	margin    time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewManager builds a manager that refreshes tokens once their remaining
// lifetime drops below margin.
func NewManager(accounts AccountStore, refresher Refresher, margin time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		accounts:  accounts,
		refresher: refresher,
		margin:    margin,
		logger:    logger.With("component", "token_manager"),
		now:       func() time.Time { return time.Now().UTC() },
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

// AccessToken returns a non-expired access token for the account,
// refreshing proactively when the expiry is inside the safety margin.
// A rejected refresh token surfaces as AuthExpiredError and must not be
// retried; the user has to reconnect the account.
func (m *Manager) AccessToken(ctx context.Context, accountID uuid.UUID) (string, error) {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := m.accounts.Get(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("load account: %w", err)
	}

	now := m.now()
	if account.AccessToken != "" && account.TokenExpiresAt.Sub(now) > m.margin {
		return account.AccessToken, nil
	}

	m.logger.Info("refreshing access token",
		"account_id", accountID,
		"expires_at", account.TokenExpiresAt,
	)

	pair, err := m.refresher.RefreshToken(ctx, account.RefreshToken)
	if err != nil {
		var transient *domain.RetryableTransportError
		if errors.As(err, &transient) {
			// The token endpoint hiccuped; the refresh token itself may
			// still be fine, so this must not look like a revocation.
			return "", fmt.Errorf("refresh tokens: %w", err)
		}
		return "", &domain.AuthExpiredError{AccountID: accountID, Err: err}
	}

	if err := m.accounts.UpdateTokens(ctx, accountID, pair); err != nil {
		return "", fmt.Errorf("persist refreshed tokens: %w", err)
	}

	m.logger.Info("access token refreshed",
		"account_id", accountID,
		"expires_at", pair.ExpiresAt,
	)

	return pair.AccessToken, nil
}

// accountLock serializes refreshes per account so concurrent workers
// cannot race the single-use refresh token.
func (m *Manager) accountLock(accountID uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}
