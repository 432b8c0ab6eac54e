package domain

import (
	"time"

	"github.com/google/uuid"
)

// Recurrence is the schedule's recurrence mode.
type Recurrence string

const (
	RecurrenceOnce  Recurrence = "once"
	RecurrenceDaily Recurrence = "daily"
)

// Schedule is a user-specified recurrence describing when a campaign's
// drafts should be posted. Schedules are superseded, not mutated: a
// reschedule deactivates the old row and inserts a new one.
//
// Exactly one of Times or ExplicitTimes is populated for daily recurrence;
// once recurrence uses only StartDate.
type Schedule struct {
	ID                   uuid.UUID
	CampaignID           uuid.UUID
	Timezone             string
	Recurrence           Recurrence
	Times                []string    // local "HH:MM" times of day
	ExplicitTimes        []time.Time // absolute UTC timestamps, used verbatim
	StartDate            time.Time   // UTC
	EndDate              *time.Time  // UTC
	Active               bool
	AutoPost             bool
	DailyLimit           int
	SelectedVariantIndex int
	PostIntervalMin      int // jitter lower bound, seconds
	PostIntervalMax      int // jitter upper bound, seconds
	ImagesPerPost        int
	CreatedAt            time.Time
}
