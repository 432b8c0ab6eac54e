package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"campaign_scheduler/internal/domain"
)

// actionRecorder writes an audit entry and fans it out to the event
// publisher. The log append is authoritative; a publish failure is
// logged and swallowed so a broker outage never fails a post.
type actionRecorder struct {
	log       ActionLogStore
	publisher Publisher
	logger    *slog.Logger
}

func (r *actionRecorder) record(ctx context.Context, campaignID uuid.UUID, draftID *uuid.UUID, action domain.Action, details map[string]any) error {
	entry := &domain.ActionLogEntry{
		CampaignID: campaignID,
		DraftID:    draftID,
		Action:     action,
		Details:    details,
	}

	if err := r.log.Append(ctx, entry); err != nil {
		return err
	}

	if r.publisher != nil {
		if err := r.publisher.PublishAction(ctx, entry); err != nil {
			r.logger.Warn("failed to publish action event",
				"campaign_id", campaignID,
				"action", action,
				"error", err,
			)
		}
	}
	return nil
}
