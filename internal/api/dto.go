package api

import (
	"time"

	"github.com/google/uuid"

	"campaign_scheduler/internal/domain"
)

type createAccountRequest struct {
	Username       string    `json:"username" validate:"required,min=1,max=64"`
	Timezone       string    `json:"timezone" validate:"required,timezone"`
	AccessToken    string    `json:"access_token" validate:"required"`
	RefreshToken   string    `json:"refresh_token" validate:"required"`
	TokenExpiresAt time.Time `json:"token_expires_at" validate:"required"`
}

type createCampaignRequest struct {
	AccountID    uuid.UUID `json:"account_id" validate:"required"`
	Title        string    `json:"title" validate:"required,min=1,max=200"`
	Description  *string   `json:"description,omitempty" validate:"omitempty,max=2000"`
	Language     string    `json:"language" validate:"required,len=2"`
	Hashtags     []string  `json:"hashtags,omitempty" validate:"max=20,dive,min=1,max=100"`
	Tone         string    `json:"tone" validate:"required,oneof=professional casual playful"`
	CallToAction *string   `json:"call_to_action,omitempty" validate:"omitempty,max=280"`
}

type updateCampaignRequest struct {
	Title        string   `json:"title" validate:"required,min=1,max=200"`
	Description  *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Hashtags     []string `json:"hashtags,omitempty" validate:"max=20,dive,min=1,max=100"`
	Tone         string   `json:"tone" validate:"required,oneof=professional casual playful"`
	CallToAction *string  `json:"call_to_action,omitempty" validate:"omitempty,max=280"`
}

type generateDraftsRequest struct {
	Count int `json:"count" validate:"required,min=1,max=20"`
}

type updateDraftRequest struct {
	Text         string     `json:"text" validate:"required,min=1,max=280"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

type createScheduleRequest struct {
	Recurrence           string      `json:"recurrence" validate:"required,oneof=once daily"`
	Timezone             string      `json:"timezone" validate:"required,timezone"`
	Times                []string    `json:"times,omitempty" validate:"max=24,dive,datetime=15:04"`
	ExplicitTimes        []time.Time `json:"explicit_times,omitempty"`
	StartDate            time.Time   `json:"start_date" validate:"required"`
	EndDate              *time.Time  `json:"end_date,omitempty"`
	AutoPost             bool        `json:"auto_post"`
	DailyLimit           int         `json:"daily_limit" validate:"required,min=1,max=100"`
	SelectedVariantIndex int         `json:"selected_variant_index" validate:"min=0"`
	PostIntervalMin      int         `json:"post_interval_min" validate:"min=0"`
	PostIntervalMax      int         `json:"post_interval_max" validate:"min=0,gtefield=PostIntervalMin"`
	ImagesPerPost        int         `json:"images_per_post" validate:"min=0,max=4"`
}

// Defaults for omitted jitter bounds, matching the schema defaults.
const (
	defaultPostIntervalMin = 120
	defaultPostIntervalMax = 300
)

func (r *createScheduleRequest) toDomain(campaignID uuid.UUID) *domain.Schedule {
	if r.PostIntervalMin == 0 && r.PostIntervalMax == 0 {
		r.PostIntervalMin = defaultPostIntervalMin
		r.PostIntervalMax = defaultPostIntervalMax
	}
	return &domain.Schedule{
		CampaignID:           campaignID,
		Timezone:             r.Timezone,
		Recurrence:           domain.Recurrence(r.Recurrence),
		Times:                r.Times,
		ExplicitTimes:        r.ExplicitTimes,
		StartDate:            r.StartDate.UTC(),
		EndDate:              r.EndDate,
		AutoPost:             r.AutoPost,
		DailyLimit:           r.DailyLimit,
		SelectedVariantIndex: r.SelectedVariantIndex,
		PostIntervalMin:      r.PostIntervalMin,
		PostIntervalMax:      r.PostIntervalMax,
		ImagesPerPost:        r.ImagesPerPost,
	}
}

type scheduleResponse struct {
	Schedule *domain.Schedule `json:"schedule"`
	NextRuns []time.Time      `json:"next_runs"`
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
