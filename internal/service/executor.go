package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"campaign_scheduler/internal/config"
	"campaign_scheduler/internal/domain"
)

// Executor publishes one draft to the platform with bounded retries.
// Only transient transport failures are retried; a platform rejection
// or an auth failure aborts immediately, and the caller decides what
// the draft becomes.
type Executor struct {
	poster Poster
	config config.ExecutorConfig
	logger *slog.Logger

	// sleep is swapped out in tests so backoff does not burn wall clock.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(poster Poster, cfg config.ExecutorConfig, logger *slog.Logger) *Executor {
	return &Executor{
		poster: poster,
		config: cfg,
		logger: logger.With("component", "executor"),
		sleep:  sleepCtx,
	}
}

// Post attempts to publish the draft text and returns the platform post
// id. The error from the final attempt is returned unwrapped enough for
// errors.As to classify it.
func (e *Executor) Post(ctx context.Context, accessToken string, draft *domain.Draft) (string, error) {
	backoff := e.config.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.config.AttemptTimeout)
		postID, err := e.poster.CreatePost(attemptCtx, accessToken, draft.Text, nil)
		cancel()

		if err == nil {
			return postID, nil
		}
		lastErr = err

		var transient *domain.RetryableTransportError
		if !errors.As(err, &transient) {
			return "", err
		}
		if attempt == e.config.MaxAttempts {
			break
		}

		e.logger.Warn("post attempt failed, retrying",
			"draft_id", draft.ID,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		if err := e.sleep(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
		if backoff > e.config.MaxBackoff {
			backoff = e.config.MaxBackoff
		}
	}

	return "", lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
