package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"campaign_scheduler/internal/config"
	"campaign_scheduler/internal/domain"
)

// Dispatcher runs one autonomous posting pass per tick: recover
// stranded claims, find due drafts across active auto-post schedules,
// claim them and publish through the executor. Claims are
// compare-and-set updates, so any number of dispatcher instances can
// tick against the same database without double posting.
type Dispatcher struct {
	drafts    DraftStore
	schedules ScheduleStore
	campaigns CampaignStore
	accounts  AccountStore
	executor  *Executor
	tokens    TokenSource
	limiter   RateLimiter
	recorder  actionRecorder
	config    config.DispatcherConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewDispatcher(
	drafts DraftStore,
	schedules ScheduleStore,
	campaigns CampaignStore,
	accounts AccountStore,
	executor *Executor,
	tokens TokenSource,
	limiter RateLimiter,
	actionLog ActionLogStore,
	publisher Publisher,
	cfg config.DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	logger = logger.With("component", "dispatcher")
	return &Dispatcher{
		drafts:    drafts,
		schedules: schedules,
		campaigns: campaigns,
		accounts:  accounts,
		executor:  executor,
		tokens:    tokens,
		limiter:   limiter,
		recorder:  actionRecorder{log: actionLog, publisher: publisher, logger: logger},
		config:    cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// claim is one draft the tick won the compare-and-set for, with the
// context needed to post it.
type claim struct {
	draft    domain.Draft
	campaign *domain.Campaign
	account  *domain.Account
	loc      *time.Location
	// reservedAt is the tick instant the rate-limit slot was taken at;
	// the release must name the same local day even when the post
	// settles after midnight.
	reservedAt time.Time
}

type postOutcome int

const (
	outcomePosted postOutcome = iota
	outcomeFailed
	outcomeRequeued
)

func (d *Dispatcher) Tick(ctx context.Context) (*domain.TickStats, error) {
	start := time.Now()
	now := d.now()
	stats := &domain.TickStats{}

	if err := d.recoverStranded(ctx, now, stats); err != nil {
		return nil, err
	}

	claims, err := d.claimDue(ctx, now, stats)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.MaxConcurrentPosts)

	// One goroutine per account; claims for the same account post
	// sequentially so an account never races itself on the platform.
	for _, group := range claims {
		group := group
		g.Go(func() error {
			for _, cl := range group {
				outcome := d.post(gctx, cl)
				mu.Lock()
				switch outcome {
				case outcomePosted:
					stats.Posted++
				case outcomeFailed:
					stats.Failed++
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	d.logger.Info("tick completed",
		"due", stats.Due,
		"claimed", stats.Claimed,
		"posted", stats.Posted,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"reclaimed", stats.Reclaimed,
		"expired", stats.Expired,
		"duration", stats.Duration,
	)
	return stats, nil
}

// recoverStranded sweeps drafts stuck in posting since before the
// stranding cutoff, from a dispatcher that died mid-post. They go back
// to pending, or to failed once the reclaim budget is spent.
func (d *Dispatcher) recoverStranded(ctx context.Context, now time.Time, stats *domain.TickStats) error {
	cutoff := now.Add(-d.config.StrandingTimeout)
	reclaimed, expired, err := d.drafts.ReclaimStranded(ctx, cutoff, d.config.MaxReclaims)
	if err != nil {
		return fmt.Errorf("reclaim stranded drafts: %w", err)
	}

	stats.Reclaimed = len(reclaimed)
	stats.Expired = len(expired)

	for _, ref := range reclaimed {
		d.logger.Warn("reclaimed stranded draft", "draft_id", ref.ID)
	}
	for _, ref := range expired {
		ref := ref
		err := d.recorder.record(ctx, ref.CampaignID, &ref.ID, domain.ActionFailed, map[string]any{
			"error": "abandoned after repeated stranding",
		})
		if err != nil {
			d.logger.Error("failed to record expired draft", "draft_id", ref.ID, "error", err)
		}
	}
	return nil
}

// claimDue walks active auto-post schedules, reserves rate-limit slots
// and claims due drafts, grouped per account.
func (d *Dispatcher) claimDue(ctx context.Context, now time.Time, stats *domain.TickStats) (map[uuid.UUID][]claim, error) {
	scheds, err := d.schedules.ListActiveAutoPost(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}

	claims := make(map[uuid.UUID][]claim)
	accountCache := make(map[uuid.UUID]*domain.Account)

	for i := range scheds {
		sched := &scheds[i]

		campaign, err := d.campaigns.Get(ctx, sched.CampaignID)
		if errors.Is(err, domain.ErrNotFound) {
			// Campaign deleted after the schedule list was read.
			d.logger.Warn("schedule without campaign, skipping", "schedule_id", sched.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load campaign %s: %w", sched.CampaignID, err)
		}

		account, ok := accountCache[campaign.AccountID]
		if !ok {
			account, err = d.accounts.Get(ctx, campaign.AccountID)
			if err != nil {
				return nil, fmt.Errorf("load account %s: %w", campaign.AccountID, err)
			}
			accountCache[campaign.AccountID] = account
		}

		loc, err := time.LoadLocation(account.Timezone)
		if err != nil {
			d.logger.Warn("bad account timezone, using UTC", "account_id", account.ID, "timezone", account.Timezone)
			loc = time.UTC
		}

		due, err := d.drafts.ListDue(ctx, sched.ID, now, d.config.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("list due drafts: %w", err)
		}
		stats.Due += len(due)

		for i := range due {
			draft := due[i]

			if err := d.limiter.Reserve(ctx, account.ID, loc, sched.DailyLimit, now); err != nil {
				var limitErr *domain.DailyLimitExceededError
				if errors.As(err, &limitErr) {
					d.skipOverLimit(ctx, &draft, limitErr, stats)
					// The rest of this schedule's batch is over the same
					// budget; no point reserving again today.
					break
				}
				return nil, fmt.Errorf("reserve rate limit slot: %w", err)
			}

			won, err := d.drafts.Claim(ctx, draft.ID)
			if err != nil {
				d.limiter.Release(account.ID, loc, now)
				return nil, fmt.Errorf("claim draft %s: %w", draft.ID, err)
			}
			if !won {
				// Another dispatcher got there first.
				d.limiter.Release(account.ID, loc, now)
				continue
			}

			stats.Claimed++
			claims[account.ID] = append(claims[account.ID], claim{
				draft:      draft,
				campaign:   campaign,
				account:    account,
				loc:        loc,
				reservedAt: now,
			})
		}
	}
	return claims, nil
}

func (d *Dispatcher) skipOverLimit(ctx context.Context, draft *domain.Draft, limitErr *domain.DailyLimitExceededError, stats *domain.TickStats) {
	reason := limitErr.Error()
	ok, err := d.drafts.Transition(ctx, draft.ID, domain.StatusPending, domain.StatusSkipped, &reason)
	if err != nil {
		d.logger.Error("failed to skip over-limit draft", "draft_id", draft.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	stats.Skipped++

	err = d.recorder.record(ctx, draft.CampaignID, &draft.ID, domain.ActionSkipped, map[string]any{
		"reason": "daily limit exceeded",
		"limit":  limitErr.Limit,
		"day":    limitErr.Day,
	})
	if err != nil {
		d.logger.Error("failed to record skip", "draft_id", draft.ID, "error", err)
	}
}

// post publishes one claimed draft and settles it into a terminal
// status. The rate-limit reservation is released on every path; a
// successful post is already counted in the persisted total by then.
func (d *Dispatcher) post(ctx context.Context, cl claim) postOutcome {
	defer d.limiter.Release(cl.account.ID, cl.loc, cl.reservedAt)

	accessToken, err := d.tokens.AccessToken(ctx, cl.account.ID)
	if err != nil {
		var authErr *domain.AuthExpiredError
		if errors.As(err, &authErr) {
			return d.fail(ctx, cl, err, map[string]any{
				"error":              err.Error(),
				"reconnect_required": true,
			})
		}
		// Transient trouble reaching the token endpoint: surrender the
		// claim and let a later tick retry the draft.
		return d.requeue(ctx, cl, err)
	}

	postID, err := d.executor.Post(ctx, accessToken, &cl.draft)
	if err != nil {
		if ctx.Err() != nil {
			return d.requeue(ctx, cl, err)
		}

		details := map[string]any{"error": err.Error()}
		var rejected *domain.PlatformRejectedError
		var transient *domain.RetryableTransportError
		switch {
		case errors.As(err, &rejected):
			details["status_code"] = rejected.StatusCode
		case errors.As(err, &transient):
			details["retries_exhausted"] = true
		}
		return d.fail(ctx, cl, err, details)
	}

	postedAt := d.now()
	ok, err := d.drafts.MarkPosted(ctx, cl.draft.ID, postID, postedAt)
	if err != nil {
		d.logger.Error("post succeeded but status update failed", "draft_id", cl.draft.ID, "post_id", postID, "error", err)
		return outcomeFailed
	}
	if !ok {
		// The stranded sweep took the claim back while the post was in
		// flight. The post went out; the reclaim will cause a retry, and
		// only the reclaim budget bounds the damage.
		d.logger.Error("post succeeded but claim was lost", "draft_id", cl.draft.ID, "post_id", postID)
		return outcomeFailed
	}

	err = d.recorder.record(ctx, cl.campaign.ID, &cl.draft.ID, domain.ActionPosted, map[string]any{
		"post_id":   postID,
		"posted_at": postedAt,
	})
	if err != nil {
		d.logger.Error("failed to record post", "draft_id", cl.draft.ID, "error", err)
	}

	d.logger.Info("draft posted",
		"draft_id", cl.draft.ID,
		"campaign_id", cl.campaign.ID,
		"post_id", postID,
	)
	return outcomePosted
}

func (d *Dispatcher) fail(ctx context.Context, cl claim, cause error, details map[string]any) postOutcome {
	if _, err := d.drafts.MarkFailed(ctx, cl.draft.ID, cause.Error()); err != nil {
		d.logger.Error("failed to mark draft failed", "draft_id", cl.draft.ID, "error", err)
	}

	err := d.recorder.record(ctx, cl.campaign.ID, &cl.draft.ID, domain.ActionFailed, details)
	if err != nil {
		d.logger.Error("failed to record failure", "draft_id", cl.draft.ID, "error", err)
	}

	d.logger.Warn("draft failed",
		"draft_id", cl.draft.ID,
		"campaign_id", cl.campaign.ID,
		"error", cause,
	)
	return outcomeFailed
}

// requeue hands a claimed draft back to pending without burning its
// attempt, for failures that say nothing about the draft itself.
func (d *Dispatcher) requeue(ctx context.Context, cl claim, cause error) postOutcome {
	// The surrounding ctx may already be canceled; the status update
	// must still go through.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := d.drafts.Transition(releaseCtx, cl.draft.ID, domain.StatusPosting, domain.StatusPending, nil); err != nil {
		d.logger.Error("failed to requeue draft", "draft_id", cl.draft.ID, "error", err)
	}
	d.logger.Warn("draft requeued", "draft_id", cl.draft.ID, "error", cause)
	return outcomeRequeued
}
