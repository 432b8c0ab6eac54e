package domain

import (
	"time"

	"github.com/google/uuid"
)

// Campaign groups generated drafts and at most one active schedule for a
// posting account.
type Campaign struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	Title        string
	Description  *string
	Language     string
	Hashtags     []string
	Tone         string
	CallToAction *string
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Account holds the platform credentials the posts go out under. Token
// fields are mutated exclusively by the token lifecycle manager.
type Account struct {
	ID             uuid.UUID
	Username       string
	Timezone       string // governs the daily-limit calendar day
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	CreatedAt      time.Time
}

// TokenPair is the result of an OAuth refresh exchange.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
