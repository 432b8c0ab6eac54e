package domain

import (
	"time"

	"github.com/google/uuid"
)

// Action identifies the kind of event recorded in the action log.
type Action string

const (
	ActionGenerated Action = "generated"
	ActionScheduled Action = "scheduled"
	ActionPosted    Action = "posted"
	ActionFailed    Action = "failed"
	ActionSkipped   Action = "skipped"
)

// ActionLogEntry is one append-only audit record. Entries are never
// mutated or deleted by the core.
type ActionLogEntry struct {
	ID         uuid.UUID
	CampaignID uuid.UUID
	DraftID    *uuid.UUID
	RunAt      time.Time
	Action     Action
	Details    map[string]any
}

// TickStats summarizes one dispatcher tick.
type TickStats struct {
	Reclaimed int
	Expired   int
	Due       int
	Claimed   int
	Posted    int
	Failed    int
	Skipped   int
	Duration  time.Duration
}
