package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"campaign_scheduler/internal/domain"
	"campaign_scheduler/internal/generator"
)

type CampaignStore interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Campaign, int, error)
	Update(ctx context.Context, campaign *domain.Campaign) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type DraftStore interface {
	CreateBatch(ctx context.Context, drafts []*domain.Draft) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Draft, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Draft, error)
	ListDue(ctx context.Context, scheduleID uuid.UUID, now time.Time, limit int) ([]domain.Draft, error)
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	MarkPosted(ctx context.Context, id uuid.UUID, postID string, postedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) (bool, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.DraftStatus, reason *string) (bool, error)
	Bind(ctx context.Context, id, scheduleID uuid.UUID, at time.Time) (bool, error)
	SkipActive(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error)
	ReclaimStranded(ctx context.Context, cutoff time.Time, maxReclaims int) (reclaimed, expired []domain.DraftRef, err error)
	UpdateContent(ctx context.Context, id uuid.UUID, text string, charCount int, scheduledFor *time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ScheduleStore interface {
	Create(ctx context.Context, sched *domain.Schedule) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	ListActiveAutoPost(ctx context.Context) ([]domain.Schedule, error)
	DeactivateByCampaign(ctx context.Context, campaignID uuid.UUID) error
}

type AccountStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

type ActionLogStore interface {
	Append(ctx context.Context, entry *domain.ActionLogEntry) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]domain.ActionLogEntry, int, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	PublishAction(ctx context.Context, entry *domain.ActionLogEntry) error
	Close() error
}

// Poster publishes one post to the platform on behalf of an account.
type Poster interface {
	CreatePost(ctx context.Context, accessToken, text string, mediaIDs []string) (string, error)
}

// TokenSource hands out fresh access tokens, refreshing behind the
// scenes when needed.
type TokenSource interface {
	AccessToken(ctx context.Context, accountID uuid.UUID) (string, error)
}

// RateLimiter guards the per-account daily post budget.
type RateLimiter interface {
	Reserve(ctx context.Context, accountID uuid.UUID, loc *time.Location, limit int, now time.Time) error
	Release(accountID uuid.UUID, loc *time.Location, now time.Time)
}

type Generator interface {
	Generate(ctx context.Context, campaign *domain.Campaign, count int) ([]generator.Variant, error)
}
