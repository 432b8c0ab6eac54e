package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"campaign_scheduler/internal/domain"
	"campaign_scheduler/internal/generator"
	"campaign_scheduler/internal/schedule"
)

// CampaignService is the write path behind the API: campaign CRUD,
// draft generation and schedule creation. The dispatcher only reads
// what this service persists.
type CampaignService struct {
	campaigns CampaignStore
	drafts    DraftStore
	schedules ScheduleStore
	txManager TransactionManager
	generator Generator
	compiler  *schedule.Compiler
	recorder  actionRecorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewCampaignService(
	campaigns CampaignStore,
	drafts DraftStore,
	schedules ScheduleStore,
	txManager TransactionManager,
	gen Generator,
	compiler *schedule.Compiler,
	actionLog ActionLogStore,
	publisher Publisher,
	logger *slog.Logger,
) *CampaignService {
	logger = logger.With("component", "campaign_service")
	return &CampaignService{
		campaigns: campaigns,
		drafts:    drafts,
		schedules: schedules,
		txManager: txManager,
		generator: gen,
		compiler:  compiler,
		recorder:  actionRecorder{log: actionLog, publisher: publisher, logger: logger},
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *CampaignService) CreateCampaign(ctx context.Context, campaign *domain.Campaign) error {
	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	s.logger.Info("campaign created", "campaign_id", campaign.ID, "title", campaign.Title)
	return nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

func (s *CampaignService) ListCampaigns(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Campaign, int, error) {
	return s.campaigns.List(ctx, accountID, limit, offset)
}

func (s *CampaignService) UpdateCampaign(ctx context.Context, campaign *domain.Campaign) error {
	return s.campaigns.Update(ctx, campaign)
}

// DeleteCampaign soft-deletes the campaign, deactivates its schedules
// and skips every draft that has not reached a terminal status. A draft
// currently posting is left alone so its outcome is still recorded.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		skipped, err := s.drafts.SkipActive(ctx, id)
		if err != nil {
			return fmt.Errorf("skip active drafts: %w", err)
		}
		if err := s.schedules.DeactivateByCampaign(ctx, id); err != nil {
			return fmt.Errorf("deactivate schedules: %w", err)
		}
		if err := s.campaigns.SoftDelete(ctx, id); err != nil {
			return fmt.Errorf("delete campaign: %w", err)
		}

		for _, draftID := range skipped {
			draftID := draftID
			err := s.recorder.record(ctx, id, &draftID, domain.ActionSkipped, map[string]any{
				"reason": "campaign deleted",
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("campaign deleted", "campaign_id", id, "title", campaign.Title)
	return nil
}

// GenerateDrafts produces count new draft variants for the campaign and
// persists them in draft status.
func (s *CampaignService) GenerateDrafts(ctx context.Context, campaignID uuid.UUID, count int) ([]domain.Draft, error) {
	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	variants, err := s.generator.Generate(ctx, campaign, count)
	if err != nil {
		return nil, fmt.Errorf("generate variants: %w", err)
	}

	drafts := make([]*domain.Draft, 0, len(variants))
	for _, v := range variants {
		if v.CharCount > generator.MaxPostChars {
			return nil, fmt.Errorf("variant %d: %w", v.Index, domain.ErrTextTooLong)
		}
		drafts = append(drafts, &domain.Draft{
			CampaignID:   campaignID,
			VariantIndex: v.Index,
			Text:         v.Text,
			CharCount:    v.CharCount,
			HashtagsUsed: v.HashtagsUsed,
			Status:       domain.StatusDraft,
		})
	}

	if err := s.drafts.CreateBatch(ctx, drafts); err != nil {
		return nil, fmt.Errorf("persist drafts: %w", err)
	}

	err = s.recorder.record(ctx, campaignID, nil, domain.ActionGenerated, map[string]any{
		"count": len(drafts),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("drafts generated", "campaign_id", campaignID, "count", len(drafts))

	out := make([]domain.Draft, len(drafts))
	for i, d := range drafts {
		out[i] = *d
	}
	return out, nil
}

// CreateSchedule supersedes any active schedule of the campaign, binds
// unscheduled drafts to compiled post events and returns the schedule
// with a preview of its next run instants. Draft binding starts at the
// schedule's selected variant and rotates through the rest.
func (s *CampaignService) CreateSchedule(ctx context.Context, sched *domain.Schedule) (*domain.Schedule, []time.Time, error) {
	campaign, err := s.campaigns.Get(ctx, sched.CampaignID)
	if err != nil {
		return nil, nil, err
	}

	if sched.DailyLimit <= 0 {
		return nil, nil, &domain.InvalidScheduleError{Reason: "daily limit must be positive"}
	}

	all, err := s.drafts.ListByCampaign(ctx, sched.CampaignID)
	if err != nil {
		return nil, nil, fmt.Errorf("list drafts: %w", err)
	}
	draftIDs := rotateSchedulable(all, sched.SelectedVariantIndex)
	if len(draftIDs) == 0 {
		return nil, nil, &domain.InvalidScheduleError{Reason: "campaign has no schedulable drafts"}
	}

	now := s.now()
	count := sched.DailyLimit
	if len(draftIDs) < count {
		count = len(draftIDs)
	}

	events, err := s.compiler.Compile(sched, draftIDs, count, now)
	if err != nil {
		return nil, nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.schedules.DeactivateByCampaign(ctx, sched.CampaignID); err != nil {
			return fmt.Errorf("deactivate previous schedules: %w", err)
		}

		sched.Active = true
		if err := s.schedules.Create(ctx, sched); err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}

		for _, ev := range events {
			ev := ev
			ok, err := s.drafts.Bind(ctx, ev.DraftID, sched.ID, ev.At)
			if err != nil {
				return fmt.Errorf("bind draft %s: %w", ev.DraftID, err)
			}
			if !ok {
				return &domain.DraftLockedError{DraftID: ev.DraftID, Status: domain.StatusPending}
			}

			details := map[string]any{"scheduled_for": ev.At}
			if !sched.AutoPost {
				details["note"] = "ready for manual posting"
			}
			if err := s.recorder.record(ctx, campaign.ID, &ev.DraftID, domain.ActionScheduled, details); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("schedule created",
		"campaign_id", campaign.ID,
		"schedule_id", sched.ID,
		"events", len(events),
		"auto_post", sched.AutoPost,
	)

	return sched, schedule.NextRuns(sched, now, 5), nil
}

// rotateSchedulable returns the ids of drafts still in draft status,
// ordered by variant index starting from the selected one.
func rotateSchedulable(drafts []domain.Draft, selected int) []uuid.UUID {
	var available []domain.Draft
	for _, d := range drafts {
		if d.Status == domain.StatusDraft {
			available = append(available, d)
		}
	}
	sort.SliceStable(available, func(i, j int) bool {
		return available[i].VariantIndex < available[j].VariantIndex
	})

	start := 0
	for i, d := range available {
		if d.VariantIndex == selected {
			start = i
			break
		}
	}

	ids := make([]uuid.UUID, 0, len(available))
	for i := range available {
		ids = append(ids, available[(start+i)%len(available)].ID)
	}
	return ids
}

func (s *CampaignService) GetDraft(ctx context.Context, id uuid.UUID) (*domain.Draft, error) {
	return s.drafts.Get(ctx, id)
}

func (s *CampaignService) ListDrafts(ctx context.Context, campaignID uuid.UUID) ([]domain.Draft, error) {
	return s.drafts.ListByCampaign(ctx, campaignID)
}

// UpdateDraft applies a user edit to a draft that has not entered the
// posting pipeline.
func (s *CampaignService) UpdateDraft(ctx context.Context, id uuid.UUID, text string, scheduledFor *time.Time) (*domain.Draft, error) {
	draft, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !draft.Status.Editable() {
		return nil, &domain.DraftLockedError{DraftID: id, Status: draft.Status}
	}

	charCount := utf8.RuneCountInString(text)
	if charCount > generator.MaxPostChars {
		return nil, domain.ErrTextTooLong
	}

	if err := s.drafts.UpdateContent(ctx, id, text, charCount, scheduledFor); err != nil {
		return nil, err
	}
	return s.drafts.Get(ctx, id)
}

// DeleteDraft removes a draft unless it is mid-post.
func (s *CampaignService) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	draft, err := s.drafts.Get(ctx, id)
	if err != nil {
		return err
	}
	if draft.Status == domain.StatusPosting {
		return &domain.DraftLockedError{DraftID: id, Status: draft.Status}
	}
	return s.drafts.Delete(ctx, id)
}

func (s *CampaignService) ListLogs(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]domain.ActionLogEntry, int, error) {
	return s.recorder.log.ListByCampaign(ctx, campaignID, limit, offset)
}
