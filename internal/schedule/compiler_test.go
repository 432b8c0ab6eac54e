package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign_scheduler/internal/domain"
	"campaign_scheduler/testdata/utils"
)

func newTestCompiler(shiftPastStart bool) *Compiler {
	return NewCompiler(rand.New(rand.NewSource(42)), shiftPastStart)
}

func draftIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestCompileOnce(t *testing.T) {
	c := newTestCompiler(true)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(2 * time.Hour)

	sched := &domain.Schedule{
		Timezone:   "UTC",
		Recurrence: domain.RecurrenceOnce,
		StartDate:  start,
		DailyLimit: 5,
	}

	events, err := c.Compile(sched, draftIDs(3), 5, now)
	require.NoError(t, err)
	require.Len(t, events, 1, "once recurrence yields a single event")
	assert.Equal(t, start, events[0].At)
}

func TestCompileDailyJitterChain(t *testing.T) {
	c := newTestCompiler(true)
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	sched := &domain.Schedule{
		Timezone:        "UTC",
		Recurrence:      domain.RecurrenceDaily,
		Times:           []string{"09:30"},
		StartDate:       now,
		PostIntervalMin: 3600,
		PostIntervalMax: 3600,
	}

	ids := draftIDs(3)
	events, err := c.Compile(sched, ids, 3, now)
	require.NoError(t, err)
	require.Len(t, events, 3)

	first := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, first, events[0].At)
	// Degenerate jitter range collapses to fixed spacing.
	assert.Equal(t, first.Add(time.Hour), events[1].At)
	assert.Equal(t, first.Add(2*time.Hour), events[2].At)

	for i, ev := range events {
		assert.Equal(t, ids[i], ev.DraftID)
	}
}

func TestCompileEventsStrictlyAscending(t *testing.T) {
	c := newTestCompiler(true)
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	sched := &domain.Schedule{
		Timezone:        "UTC",
		Recurrence:      domain.RecurrenceDaily,
		Times:           []string{"10:00"},
		StartDate:       now,
		PostIntervalMin: 60,
		PostIntervalMax: 7200,
	}

	events, err := c.Compile(sched, draftIDs(10), 10, now)
	require.NoError(t, err)
	require.Len(t, events, 10)

	for i := 1; i < len(events); i++ {
		assert.True(t, events[i].At.After(events[i-1].At),
			"event %d must come after event %d", i, i-1)
	}
}

func TestCompileZeroJitterStillAscends(t *testing.T) {
	c := newTestCompiler(true)
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	// Zero-width jitter at zero is what the schema default admits; the
	// chain must still never emit two events at the same instant.
	sched := &domain.Schedule{
		Timezone:        "UTC",
		Recurrence:      domain.RecurrenceDaily,
		Times:           []string{"09:00"},
		StartDate:       now,
		PostIntervalMin: 0,
		PostIntervalMax: 0,
	}

	events, err := c.Compile(sched, draftIDs(3), 3, now)
	require.NoError(t, err)
	require.Len(t, events, 3)

	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, first, events[0].At)
	assert.Equal(t, first.Add(time.Second), events[1].At)
	assert.Equal(t, first.Add(2*time.Second), events[2].At)
}

func TestCompileCountCappedByDrafts(t *testing.T) {
	c := newTestCompiler(true)
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	sched := &domain.Schedule{
		Timezone:        "UTC",
		Recurrence:      domain.RecurrenceDaily,
		Times:           []string{"09:00"},
		StartDate:       now,
		PostIntervalMin: 600,
		PostIntervalMax: 600,
	}

	events, err := c.Compile(sched, draftIDs(2), 10, now)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestCompileExplicitTimes(t *testing.T) {
	c := newTestCompiler(true)
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	t1 := now.Add(3 * time.Hour)
	t2 := now.Add(1 * time.Hour)
	t3 := now.Add(48 * time.Hour)

	sched := &domain.Schedule{
		Timezone:      "UTC",
		Recurrence:    domain.RecurrenceDaily,
		ExplicitTimes: []time.Time{t1, t2, t3},
		StartDate:     now,
		EndDate:       utils.Ptr(now.Add(24 * time.Hour)),
	}

	events, err := c.Compile(sched, draftIDs(3), 3, now)
	require.NoError(t, err)
	require.Len(t, events, 2, "timestamp past the end date is dropped")
	assert.Equal(t, t2, events[0].At)
	assert.Equal(t, t1, events[1].At)
}

func TestCompilePastStartShifted(t *testing.T) {
	c := newTestCompiler(true)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sched := &domain.Schedule{
		Timezone:        "UTC",
		Recurrence:      domain.RecurrenceDaily,
		Times:           []string{"09:00"},
		StartDate:       now.Add(-24 * time.Hour),
		PostIntervalMin: 1800,
		PostIntervalMax: 1800,
	}

	events, err := c.Compile(sched, draftIDs(2), 2, now)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, now.Add(time.Minute), events[0].At, "series starts one minute from now")
	assert.Equal(t, 30*time.Minute, events[1].At.Sub(events[0].At), "spacing survives the shift")
}

func TestCompilePastStartRejected(t *testing.T) {
	c := newTestCompiler(false)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sched := &domain.Schedule{
		Timezone:   "UTC",
		Recurrence: domain.RecurrenceOnce,
		StartDate:  now.Add(-time.Hour),
	}

	_, err := c.Compile(sched, draftIDs(1), 1, now)
	var invalid *domain.InvalidScheduleError
	require.ErrorAs(t, err, &invalid)
}

func TestCompileTimezoneAnchoring(t *testing.T) {
	c := newTestCompiler(true)
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	sched := &domain.Schedule{
		Timezone:   "Europe/Istanbul", // UTC+3
		Recurrence: domain.RecurrenceDaily,
		Times:      []string{"12:00"},
		StartDate:  now,
	}

	events, err := c.Compile(sched, draftIDs(1), 1, now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), events[0].At)
}

func TestCompileValidation(t *testing.T) {
	c := newTestCompiler(true)
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	ids := draftIDs(1)

	tests := []struct {
		name  string
		sched *domain.Schedule
		ids   []uuid.UUID
		count int
	}{
		{
			name:  "zero count",
			sched: &domain.Schedule{Timezone: "UTC", Recurrence: domain.RecurrenceOnce, StartDate: now.Add(time.Hour)},
			ids:   ids,
			count: 0,
		},
		{
			name:  "no drafts",
			sched: &domain.Schedule{Timezone: "UTC", Recurrence: domain.RecurrenceOnce, StartDate: now.Add(time.Hour)},
			ids:   nil,
			count: 1,
		},
		{
			name: "jitter min above max",
			sched: &domain.Schedule{
				Timezone: "UTC", Recurrence: domain.RecurrenceDaily, Times: []string{"09:00"},
				StartDate: now, PostIntervalMin: 100, PostIntervalMax: 50,
			},
			ids:   ids,
			count: 1,
		},
		{
			name:  "bad timezone",
			sched: &domain.Schedule{Timezone: "Mars/Olympus", Recurrence: domain.RecurrenceOnce, StartDate: now.Add(time.Hour)},
			ids:   ids,
			count: 1,
		},
		{
			name: "bad time of day",
			sched: &domain.Schedule{
				Timezone: "UTC", Recurrence: domain.RecurrenceDaily, Times: []string{"25:99"},
				StartDate: now,
			},
			ids:   ids,
			count: 1,
		},
		{
			name: "daily without times",
			sched: &domain.Schedule{
				Timezone: "UTC", Recurrence: domain.RecurrenceDaily, StartDate: now,
			},
			ids:   ids,
			count: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(tt.sched, tt.ids, tt.count, now)
			var invalid *domain.InvalidScheduleError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestNextRunsDaily(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sched := &domain.Schedule{
		Timezone:   "UTC",
		Recurrence: domain.RecurrenceDaily,
		Times:      []string{"09:00", "15:00"},
		StartDate:  now.Add(-48 * time.Hour),
	}

	runs := NextRuns(sched, now, 3)
	require.Len(t, runs, 3)
	assert.Equal(t, time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC), runs[0], "today 09:00 already passed")
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), runs[1])
	assert.Equal(t, time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), runs[2])
}

func TestNextRunsRespectsEndDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sched := &domain.Schedule{
		Timezone:   "UTC",
		Recurrence: domain.RecurrenceDaily,
		Times:      []string{"15:00"},
		StartDate:  now.Add(-24 * time.Hour),
		EndDate:    utils.Ptr(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)),
	}

	runs := NextRuns(sched, now, 5)
	require.Len(t, runs, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC), runs[0])
}
