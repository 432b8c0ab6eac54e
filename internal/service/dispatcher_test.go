package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"campaign_scheduler/internal/config"
	"campaign_scheduler/internal/domain"
	"campaign_scheduler/internal/service/mocks"
)

type DispatcherTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	drafts    *mocks.MockDraftStore
	schedules *mocks.MockScheduleStore
	campaigns *mocks.MockCampaignStore
	accounts  *mocks.MockAccountStore
	actionLog *mocks.MockActionLogStore
	publisher *mocks.MockPublisher
	poster    *mocks.MockPoster
	tokens    *mocks.MockTokenSource
	limiter   *mocks.MockRateLimiter

	dispatcher *Dispatcher
	now        time.Time

	accountID  uuid.UUID
	campaignID uuid.UUID
	scheduleID uuid.UUID

	account  *domain.Account
	campaign *domain.Campaign
	schedule domain.Schedule
}

func (s *DispatcherTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.drafts = mocks.NewMockDraftStore(s.ctrl)
	s.schedules = mocks.NewMockScheduleStore(s.ctrl)
	s.campaigns = mocks.NewMockCampaignStore(s.ctrl)
	s.accounts = mocks.NewMockAccountStore(s.ctrl)
	s.actionLog = mocks.NewMockActionLogStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.poster = mocks.NewMockPoster(s.ctrl)
	s.tokens = mocks.NewMockTokenSource(s.ctrl)
	s.limiter = mocks.NewMockRateLimiter(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	executor := NewExecutor(s.poster, config.ExecutorConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		AttemptTimeout: time.Second,
	}, logger)

	s.dispatcher = NewDispatcher(
		s.drafts,
		s.schedules,
		s.campaigns,
		s.accounts,
		executor,
		s.tokens,
		s.limiter,
		s.actionLog,
		s.publisher,
		config.DispatcherConfig{
			Interval:           30 * time.Second,
			BatchSize:          20,
			MaxConcurrentPosts: 4,
			StrandingTimeout:   5 * time.Minute,
			MaxReclaims:        3,
		},
		logger,
	)

	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.dispatcher.now = func() time.Time { return s.now }

	s.accountID = uuid.New()
	s.campaignID = uuid.New()
	s.scheduleID = uuid.New()

	s.account = &domain.Account{ID: s.accountID, Username: "acme", Timezone: "UTC"}
	s.campaign = &domain.Campaign{ID: s.campaignID, AccountID: s.accountID, Title: "Launch"}
	s.schedule = domain.Schedule{
		ID:         s.scheduleID,
		CampaignID: s.campaignID,
		Timezone:   "UTC",
		Recurrence: domain.RecurrenceDaily,
		Active:     true,
		AutoPost:   true,
		DailyLimit: 10,
	}
}

func (s *DispatcherTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func (s *DispatcherTestSuite) expectNoStranded() {
	s.drafts.EXPECT().ReclaimStranded(gomock.Any(), s.now.Add(-5*time.Minute), 3).Return(nil, nil, nil)
}

func (s *DispatcherTestSuite) expectScheduleLookup() {
	s.schedules.EXPECT().ListActiveAutoPost(gomock.Any()).Return([]domain.Schedule{s.schedule}, nil)
	s.campaigns.EXPECT().Get(gomock.Any(), s.campaignID).Return(s.campaign, nil)
	s.accounts.EXPECT().Get(gomock.Any(), s.accountID).Return(s.account, nil)
}

func (s *DispatcherTestSuite) dueDraft() domain.Draft {
	scheduledFor := s.now.Add(-time.Minute)
	return domain.Draft{
		ID:           uuid.New(),
		CampaignID:   s.campaignID,
		ScheduleID:   &s.scheduleID,
		Text:         "post me",
		Status:       domain.StatusPending,
		ScheduledFor: &scheduledFor,
	}
}

func (s *DispatcherTestSuite) TestTick_PostsDueDraft() {
	draft := s.dueDraft()

	s.expectNoStranded()
	s.expectScheduleLookup()
	s.drafts.EXPECT().ListDue(gomock.Any(), s.scheduleID, s.now, 20).Return([]domain.Draft{draft}, nil)

	s.limiter.EXPECT().Reserve(gomock.Any(), s.accountID, time.UTC, 10, s.now).Return(nil)
	s.drafts.EXPECT().Claim(gomock.Any(), draft.ID).Return(true, nil)

	s.tokens.EXPECT().AccessToken(gomock.Any(), s.accountID).Return("token", nil)
	s.poster.EXPECT().CreatePost(gomock.Any(), "token", "post me", nil).Return("post1", nil)
	s.drafts.EXPECT().MarkPosted(gomock.Any(), draft.ID, "post1", s.now).Return(true, nil)

	s.actionLog.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, entry *domain.ActionLogEntry) error {
			s.Equal(domain.ActionPosted, entry.Action)
			s.Equal(s.campaignID, entry.CampaignID)
			s.Equal(draft.ID, *entry.DraftID)
			s.Equal("post1", entry.Details["post_id"])
			return nil
		})
	s.publisher.EXPECT().PublishAction(gomock.Any(), gomock.Any()).Return(nil)
	s.limiter.EXPECT().Release(s.accountID, time.UTC, s.now)

	stats, err := s.dispatcher.Tick(context.Background())
	s.NoError(err)
	s.Equal(1, stats.Due)
	s.Equal(1, stats.Claimed)
	s.Equal(1, stats.Posted)
	s.Equal(0, stats.Failed)
}

func (s *DispatcherTestSuite) TestTick_DailyLimitSkipsRestOfBatch() {
	first := s.dueDraft()
	second := s.dueDraft()

	s.expectNoStranded()
	s.expectScheduleLookup()
	s.drafts.EXPECT().ListDue(gomock.Any(), s.scheduleID, s.now, 20).Return([]domain.Draft{first, second}, nil)

	s.limiter.EXPECT().Reserve(gomock.Any(), s.accountID, time.UTC, 10, s.now).Return(
		&domain.DailyLimitExceededError{AccountID: s.accountID, Limit: 10, Day: "2026-03-01"})

	s.drafts.EXPECT().Transition(gomock.Any(), first.ID, domain.StatusPending, domain.StatusSkipped, gomock.Any()).Return(true, nil)
	s.actionLog.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, entry *domain.ActionLogEntry) error {
			s.Equal(domain.ActionSkipped, entry.Action)
			s.Equal("daily limit exceeded", entry.Details["reason"])
			return nil
		})
	s.publisher.EXPECT().PublishAction(gomock.Any(), gomock.Any()).Return(nil)

	stats, err := s.dispatcher.Tick(context.Background())
	s.NoError(err)
	s.Equal(2, stats.Due)
	s.Equal(1, stats.Skipped, "only the first draft is settled; the rest wait for tomorrow's budget")
	s.Equal(0, stats.Claimed)
}

func (s *DispatcherTestSuite) TestTick_LostClaimReleasesReservation() {
	draft := s.dueDraft()

	s.expectNoStranded()
	s.expectScheduleLookup()
	s.drafts.EXPECT().ListDue(gomock.Any(), s.scheduleID, s.now, 20).Return([]domain.Draft{draft}, nil)

	s.limiter.EXPECT().Reserve(gomock.Any(), s.accountID, time.UTC, 10, s.now).Return(nil)
	s.drafts.EXPECT().Claim(gomock.Any(), draft.ID).Return(false, nil)
	s.limiter.EXPECT().Release(s.accountID, time.UTC, s.now)

	stats, err := s.dispatcher.Tick(context.Background())
	s.NoError(err)
	s.Equal(0, stats.Claimed)
	s.Equal(0, stats.Posted)
}

func (s *DispatcherTestSuite) TestTick_AuthExpiredFailsDraft() {
	draft := s.dueDraft()

	s.expectNoStranded()
	s.expectScheduleLookup()
	s.drafts.EXPECT().ListDue(gomock.Any(), s.scheduleID, s.now, 20).Return([]domain.Draft{draft}, nil)

	s.limiter.EXPECT().Reserve(gomock.Any(), s.accountID, time.UTC, 10, s.now).Return(nil)
	s.drafts.EXPECT().Claim(gomock.Any(), draft.ID).Return(true, nil)

	authErr := &domain.AuthExpiredError{AccountID: s.accountID, Err: fmt.Errorf("refresh token rejected")}
	s.tokens.EXPECT().AccessToken(gomock.Any(), s.accountID).Return("", authErr)

	s.drafts.EXPECT().MarkFailed(gomock.Any(), draft.ID, gomock.Any()).Return(true, nil)
	s.actionLog.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, entry *domain.ActionLogEntry) error {
			s.Equal(domain.ActionFailed, entry.Action)
			s.Equal(true, entry.Details["reconnect_required"])
			return nil
		})
	s.publisher.EXPECT().PublishAction(gomock.Any(), gomock.Any()).Return(nil)
	s.limiter.EXPECT().Release(s.accountID, time.UTC, s.now)

	stats, err := s.dispatcher.Tick(context.Background())
	s.NoError(err)
	s.Equal(1, stats.Failed)
	s.Equal(0, stats.Posted)
}

func (s *DispatcherTestSuite) TestTick_TransientTokenFailureRequeues() {
	draft := s.dueDraft()

	s.expectNoStranded()
	s.expectScheduleLookup()
	s.drafts.EXPECT().ListDue(gomock.Any(), s.scheduleID, s.now, 20).Return([]domain.Draft{draft}, nil)

	s.limiter.EXPECT().Reserve(gomock.Any(), s.accountID, time.UTC, 10, s.now).Return(nil)
	s.drafts.EXPECT().Claim(gomock.Any(), draft.ID).Return(true, nil)

	s.tokens.EXPECT().AccessToken(gomock.Any(), s.accountID).Return("",
		fmt.Errorf("refresh tokens: %w", &domain.RetryableTransportError{StatusCode: 503}))

	s.drafts.EXPECT().Transition(gomock.Any(), draft.ID, domain.StatusPosting, domain.StatusPending, nil).Return(true, nil)
	s.limiter.EXPECT().Release(s.accountID, time.UTC, s.now)

	stats, err := s.dispatcher.Tick(context.Background())
	s.NoError(err)
	s.Equal(0, stats.Failed, "requeued drafts are neither posted nor failed")
	s.Equal(0, stats.Posted)
}

func (s *DispatcherTestSuite) TestTick_PlatformRejectionFailsDraft() {
	draft := s.dueDraft()

	s.expectNoStranded()
	s.expectScheduleLookup()
	s.drafts.EXPECT().ListDue(gomock.Any(), s.scheduleID, s.now, 20).Return([]domain.Draft{draft}, nil)

	s.limiter.EXPECT().Reserve(gomock.Any(), s.accountID, time.UTC, 10, s.now).Return(nil)
	s.drafts.EXPECT().Claim(gomock.Any(), draft.ID).Return(true, nil)

	s.tokens.EXPECT().AccessToken(gomock.Any(), s.accountID).Return("token", nil)
	s.poster.EXPECT().CreatePost(gomock.Any(), "token", "post me", nil).Return("",
		&domain.PlatformRejectedError{StatusCode: 403, Reason: "duplicate content"})

	s.drafts.EXPECT().MarkFailed(gomock.Any(), draft.ID, gomock.Any()).Return(true, nil)
	s.actionLog.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, entry *domain.ActionLogEntry) error {
			s.Equal(domain.ActionFailed, entry.Action)
			s.Equal(403, entry.Details["status_code"])
			return nil
		})
	s.publisher.EXPECT().PublishAction(gomock.Any(), gomock.Any()).Return(nil)
	s.limiter.EXPECT().Release(s.accountID, time.UTC, s.now)

	stats, err := s.dispatcher.Tick(context.Background())
	s.NoError(err)
	s.Equal(1, stats.Failed)
}

func (s *DispatcherTestSuite) TestTick_ReleaseNamesReservationDay() {
	draft := s.dueDraft()

	// The clock rolls past the account-local midnight between the claim
	// and the settle; the release must still land on the day the slot
	// was reserved for.
	tickNow := s.now
	afterMidnight := time.Date(2026, 3, 2, 0, 0, 1, 0, time.UTC)
	calls := 0
	s.dispatcher.now = func() time.Time {
		calls++
		if calls == 1 {
			return tickNow
		}
		return afterMidnight
	}

	s.drafts.EXPECT().ReclaimStranded(gomock.Any(), tickNow.Add(-5*time.Minute), 3).Return(nil, nil, nil)
	s.expectScheduleLookup()
	s.drafts.EXPECT().ListDue(gomock.Any(), s.scheduleID, tickNow, 20).Return([]domain.Draft{draft}, nil)

	s.limiter.EXPECT().Reserve(gomock.Any(), s.accountID, time.UTC, 10, tickNow).Return(nil)
	s.drafts.EXPECT().Claim(gomock.Any(), draft.ID).Return(true, nil)

	s.tokens.EXPECT().AccessToken(gomock.Any(), s.accountID).Return("token", nil)
	s.poster.EXPECT().CreatePost(gomock.Any(), "token", "post me", nil).Return("post1", nil)
	s.drafts.EXPECT().MarkPosted(gomock.Any(), draft.ID, "post1", afterMidnight).Return(true, nil)

	s.actionLog.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().PublishAction(gomock.Any(), gomock.Any()).Return(nil)

	s.limiter.EXPECT().Release(s.accountID, time.UTC, tickNow)

	stats, err := s.dispatcher.Tick(context.Background())
	s.NoError(err)
	s.Equal(1, stats.Posted)
}

func (s *DispatcherTestSuite) TestTick_RecoversStrandedDrafts() {
	reclaimedRef := domain.DraftRef{ID: uuid.New(), CampaignID: s.campaignID}
	expiredRef := domain.DraftRef{ID: uuid.New(), CampaignID: s.campaignID}

	s.drafts.EXPECT().ReclaimStranded(gomock.Any(), s.now.Add(-5*time.Minute), 3).Return(
		[]domain.DraftRef{reclaimedRef}, []domain.DraftRef{expiredRef}, nil)

	s.actionLog.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, entry *domain.ActionLogEntry) error {
			s.Equal(domain.ActionFailed, entry.Action)
			s.Equal(expiredRef.ID, *entry.DraftID)
			return nil
		})
	s.publisher.EXPECT().PublishAction(gomock.Any(), gomock.Any()).Return(nil)

	s.schedules.EXPECT().ListActiveAutoPost(gomock.Any()).Return(nil, nil)

	stats, err := s.dispatcher.Tick(context.Background())
	s.NoError(err)
	s.Equal(1, stats.Reclaimed)
	s.Equal(1, stats.Expired)
}

func (s *DispatcherTestSuite) TestTick_SkipsScheduleOfDeletedCampaign() {
	s.expectNoStranded()
	s.schedules.EXPECT().ListActiveAutoPost(gomock.Any()).Return([]domain.Schedule{s.schedule}, nil)
	s.campaigns.EXPECT().Get(gomock.Any(), s.campaignID).Return(nil, domain.ErrNotFound)

	stats, err := s.dispatcher.Tick(context.Background())
	s.NoError(err)
	s.Equal(0, stats.Due)
}
