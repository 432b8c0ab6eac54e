package domain

import (
	"time"

	"github.com/google/uuid"
)

// DraftStatus is the lifecycle state of a draft. Status is mutated only
// through conditional transitions; see CanTransition.
type DraftStatus string

const (
	StatusDraft   DraftStatus = "draft"   // generated, not yet scheduled
	StatusPending DraftStatus = "pending" // has a future scheduled_for
	StatusPosting DraftStatus = "posting" // claimed by a dispatcher worker
	StatusPosted  DraftStatus = "posted"
	StatusFailed  DraftStatus = "failed"
	StatusSkipped DraftStatus = "skipped"
)

var transitions = map[DraftStatus][]DraftStatus{
	StatusDraft:   {StatusPending, StatusSkipped},
	StatusPending: {StatusPosting, StatusSkipped},
	StatusPosting: {StatusPosted, StatusFailed, StatusPending}, // posting -> pending is the stranded reclaim
	StatusPosted:  {},
	StatusFailed:  {},
	StatusSkipped: {},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to DraftStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s DraftStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Editable reports whether user edits to the draft text are allowed.
func (s DraftStatus) Editable() bool {
	return s == StatusDraft || s == StatusPending
}

// Draft is one generated text variant for a campaign, tracked through the
// posting lifecycle.
type Draft struct {
	ID           uuid.UUID
	CampaignID   uuid.UUID
	ScheduleID   *uuid.UUID
	VariantIndex int
	Text         string
	CharCount    int
	HashtagsUsed []string
	Status       DraftStatus
	LastError    *string
	PostID       *string    // platform-assigned id, set on success
	ScheduledFor *time.Time // always UTC
	PostedAt     *time.Time
	ClaimCount   int // bumped on every claim and stranded reclaim
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DraftRef identifies a draft together with its campaign, for bulk
// status sweeps that need to write log entries.
type DraftRef struct {
	ID         uuid.UUID `db:"id"`
	CampaignID uuid.UUID `db:"campaign_id"`
}

// PostEvent pairs a draft with the absolute UTC instant it should be
// published at. It is materialized as the draft's pending scheduled_for,
// never persisted separately.
type PostEvent struct {
	DraftID uuid.UUID
	At      time.Time
}
