// Package ratelimit caps how many posts leave the dispatcher per account
// per calendar day, where "day" is evaluated in the account's configured
// timezone rather than process wall clock.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"campaign_scheduler/internal/domain"
)

// PostCounter reports how many drafts were posted for an account inside
// a UTC window. Backed by the draft store.
type PostCounter interface {
	CountPostedBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) (int, error)
}

// Limiter combines the persisted posted count with in-memory
// reservations for claims that are in flight but not yet terminal, so
// concurrent dispatch within one tick cannot oversubscribe a day.
type Limiter struct {
	counter PostCounter

	mu       sync.Mutex
	reserved map[string]int
}

func NewLimiter(counter PostCounter) *Limiter {
	return &Limiter{
		counter:  counter,
		reserved: make(map[string]int),
	}
}

// Reserve takes one slot for the account's current local day. It returns
// DailyLimitExceededError once posted + reserved reaches the limit.
func (l *Limiter) Reserve(ctx context.Context, accountID uuid.UUID, loc *time.Location, limit int, now time.Time) error {
	from, to, day := dayBounds(now, loc)

	posted, err := l.counter.CountPostedBetween(ctx, accountID, from, to)
	if err != nil {
		return fmt.Errorf("count posted: %w", err)
	}

	key := reservationKey(accountID, day)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(day)

	if posted+l.reserved[key] >= limit {
		return &domain.DailyLimitExceededError{AccountID: accountID, Limit: limit, Day: day}
	}
	l.reserved[key]++
	return nil
}

// Release frees one reservation after the claim reached a terminal
// outcome (a successful post is already visible in the persisted count)
// or was lost to another dispatcher.
func (l *Limiter) Release(accountID uuid.UUID, loc *time.Location, now time.Time) {
	_, _, day := dayBounds(now, loc)
	key := reservationKey(accountID, day)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reserved[key] > 0 {
		l.reserved[key]--
	}
	if l.reserved[key] == 0 {
		delete(l.reserved, key)
	}
}

// prune drops reservations from previous days; midnight rollover in the
// account's timezone resets the budget. Caller holds l.mu.
func (l *Limiter) prune(day string) {
	for key := range l.reserved {
		if key[len(key)-len(day):] < day {
			delete(l.reserved, key)
		}
	}
}

func reservationKey(accountID uuid.UUID, day string) string {
	return accountID.String() + "|" + day
}

// dayBounds returns the UTC window covering the account-local calendar
// day containing now, plus that day's date string.
func dayBounds(now time.Time, loc *time.Location) (time.Time, time.Time, string) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC(), start.Format("2006-01-02")
}
