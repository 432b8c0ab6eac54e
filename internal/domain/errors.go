package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when an entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrTextTooLong rejects draft text over the platform length cap.
var ErrTextTooLong = errors.New("post text exceeds platform limit")

// InvalidScheduleError rejects bad compiler input before anything is
// persisted.
type InvalidScheduleError struct {
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return "invalid schedule: " + e.Reason
}

// DraftLockedError is returned when an edit is attempted on a draft that
// is in flight or terminal.
type DraftLockedError struct {
	DraftID uuid.UUID
	Status  DraftStatus
}

func (e *DraftLockedError) Error() string {
	return fmt.Sprintf("draft %s is not editable in status %q", e.DraftID, e.Status)
}

// DailyLimitExceededError is a soft failure: the affected draft is
// skipped, not failed.
type DailyLimitExceededError struct {
	AccountID uuid.UUID
	Limit     int
	Day       string // account-local calendar date, YYYY-MM-DD
}

func (e *DailyLimitExceededError) Error() string {
	return fmt.Sprintf("daily limit of %d posts reached for account %s on %s", e.Limit, e.AccountID, e.Day)
}

// AuthExpiredError means the refresh token was rejected. It is terminal
// and never retried; the user has to reconnect the account.
type AuthExpiredError struct {
	AccountID uuid.UUID
	Err       error
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("authorization expired for account %s: %v", e.AccountID, e.Err)
}

func (e *AuthExpiredError) Unwrap() error { return e.Err }

// RetryableTransportError covers network timeouts, 5xx responses and
// platform rate limiting. The post executor retries these within its
// attempt budget.
type RetryableTransportError struct {
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *RetryableTransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient platform error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("transient transport error: %v", e.Err)
}

func (e *RetryableTransportError) Unwrap() error { return e.Err }

// PlatformRejectedError is a non-retryable publish rejection, such as
// duplicate content or a suspended account.
type PlatformRejectedError struct {
	StatusCode int
	Reason     string
}

func (e *PlatformRejectedError) Error() string {
	return fmt.Sprintf("platform rejected post (status %d): %s", e.StatusCode, e.Reason)
}
