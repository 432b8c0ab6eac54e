// Package schedule turns a recurrence specification into concrete UTC
// post events. Compilation is pure: the current time and the random
// source for jitter are both injected, so sequences are reproducible.
package schedule

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"campaign_scheduler/internal/domain"
)

const (
	// startGrace is how far into the future a series is pushed when its
	// computed start is already in the past.
	startGrace = time.Minute

	// noRepeatSpan is the jitter range width above which two consecutive
	// draws must differ, to avoid a visibly mechanical cadence.
	noRepeatSpan = 30

	maxRedraws = 5
)

type Compiler struct {
	rng *rand.Rand

	// shiftPastStart controls what happens when the first computed
	// instant is already past: shift the whole series to start at
	// now+1m, or reject the schedule. The shift is the historical
	// behavior; it is a policy knob because it causes surprising
	// near-immediate posts.
	shiftPastStart bool
}

func NewCompiler(rng *rand.Rand, shiftPastStart bool) *Compiler {
	return &Compiler{rng: rng, shiftPastStart: shiftPastStart}
}

// Compile produces at most min(count, len(draftIDs)) post events, in
// strictly ascending time order, each bound to one draft.
func (c *Compiler) Compile(sched *domain.Schedule, draftIDs []uuid.UUID, count int, now time.Time) ([]domain.PostEvent, error) {
	if count <= 0 {
		return nil, &domain.InvalidScheduleError{Reason: "post count must be positive"}
	}
	if len(draftIDs) == 0 {
		return nil, &domain.InvalidScheduleError{Reason: "no drafts available"}
	}
	if sched.PostIntervalMin < 0 {
		return nil, &domain.InvalidScheduleError{Reason: "jitter bounds must be non-negative"}
	}
	if sched.PostIntervalMin > sched.PostIntervalMax {
		return nil, &domain.InvalidScheduleError{Reason: fmt.Sprintf("jitter min %ds exceeds max %ds", sched.PostIntervalMin, sched.PostIntervalMax)}
	}

	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		return nil, &domain.InvalidScheduleError{Reason: fmt.Sprintf("unrecognized timezone %q", sched.Timezone)}
	}

	n := count
	if len(draftIDs) < n {
		n = len(draftIDs)
	}

	var instants []time.Time
	switch {
	case sched.Recurrence == domain.RecurrenceOnce:
		instants = []time.Time{sched.StartDate.UTC()}
		n = 1
	case len(sched.ExplicitTimes) > 0:
		instants = explicitInstants(sched, n)
	default:
		instants, err = c.jitteredInstants(sched, loc, n)
		if err != nil {
			return nil, err
		}
	}

	if len(instants) == 0 {
		return nil, &domain.InvalidScheduleError{Reason: "schedule produces no post events"}
	}

	if instants[0].Before(now) {
		if !c.shiftPastStart {
			return nil, &domain.InvalidScheduleError{Reason: "start time is already in the past"}
		}
		// Shift the whole series forward rather than rolling to the next
		// calendar day; the user expects near-immediate action.
		shift := now.Add(startGrace).Sub(instants[0])
		for i := range instants {
			instants[i] = instants[i].Add(shift)
		}
	}

	events := make([]domain.PostEvent, 0, len(instants))
	for i, at := range instants {
		if i >= len(draftIDs) {
			break
		}
		events = append(events, domain.PostEvent{DraftID: draftIDs[i], At: at})
	}
	return events, nil
}

// explicitInstants uses the schedule's absolute timestamps verbatim,
// sorted ascending and truncated past the end date.
func explicitInstants(sched *domain.Schedule, n int) []time.Time {
	instants := make([]time.Time, 0, len(sched.ExplicitTimes))
	for _, t := range sched.ExplicitTimes {
		t = t.UTC()
		if sched.EndDate != nil && t.After(*sched.EndDate) {
			continue
		}
		instants = append(instants, t)
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })
	if len(instants) > n {
		instants = instants[:n]
	}
	return instants
}

// jitteredInstants anchors the series at the earliest daily time on the
// start date, then spaces each following event by a fresh jitter draw.
func (c *Compiler) jitteredInstants(sched *domain.Schedule, loc *time.Location, n int) ([]time.Time, error) {
	if len(sched.Times) == 0 {
		return nil, &domain.InvalidScheduleError{Reason: "daily recurrence requires at least one time of day"}
	}

	first, err := firstDailyInstant(sched, loc)
	if err != nil {
		return nil, err
	}

	instants := make([]time.Time, 0, n)
	cursor := first
	prev := int64(-1)
	for len(instants) < n {
		if sched.EndDate != nil && cursor.After(*sched.EndDate) {
			break
		}
		instants = append(instants, cursor)

		d := c.drawInterval(prev, sched.PostIntervalMin, sched.PostIntervalMax)
		prev = d
		cursor = cursor.Add(time.Duration(d) * time.Second)
	}
	return instants, nil
}

func firstDailyInstant(sched *domain.Schedule, loc *time.Location) (time.Time, error) {
	earliest := time.Time{}
	start := sched.StartDate.In(loc)
	for _, ts := range sched.Times {
		var hour, minute int
		if _, err := fmt.Sscanf(ts, "%d:%d", &hour, &minute); err != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return time.Time{}, &domain.InvalidScheduleError{Reason: fmt.Sprintf("invalid time of day %q", ts)}
		}
		at := time.Date(start.Year(), start.Month(), start.Day(), hour, minute, 0, 0, loc).UTC()
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
	}
	return earliest, nil
}

// drawInterval picks uniformly from [min, max] seconds, redrawing a
// bounded number of times when the result repeats the previous draw and
// the range is wide enough for a repeat to look mechanical. The result
// is never below one second: zero spacing would collapse the chain into
// events sharing a timestamp.
func (c *Compiler) drawInterval(prev int64, min, max int) int64 {
	span := int64(max - min)
	d := int64(min)
	if span > 0 {
		d += c.rng.Int63n(span + 1)
		if span > noRepeatSpan {
			for i := 0; i < maxRedraws && d == prev; i++ {
				d = int64(min) + c.rng.Int63n(span+1)
			}
		}
	}
	if d < 1 {
		d = 1
	}
	return d
}

// NextRuns previews the next count run instants for display, without
// binding drafts. Daily times recur day over day until the end date.
func NextRuns(sched *domain.Schedule, now time.Time, count int) []time.Time {
	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		loc = time.UTC
	}

	if len(sched.ExplicitTimes) > 0 {
		runs := make([]time.Time, 0, count)
		sorted := append([]time.Time(nil), sched.ExplicitTimes...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
		for _, t := range sorted {
			if t.After(now) && len(runs) < count {
				runs = append(runs, t.UTC())
			}
		}
		return runs
	}

	var runs []time.Time
	day := now.In(loc)
	if sched.StartDate.After(now) {
		day = sched.StartDate.In(loc)
	}
	for i := 0; i < 365 && len(runs) < count; i++ {
		for _, ts := range sched.Times {
			var hour, minute int
			if _, err := fmt.Sscanf(ts, "%d:%d", &hour, &minute); err != nil {
				continue
			}
			at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc).UTC()
			if !at.After(now) {
				continue
			}
			if sched.EndDate != nil && at.After(*sched.EndDate) {
				continue
			}
			runs = append(runs, at)
			if len(runs) >= count {
				break
			}
		}
		if sched.Recurrence == domain.RecurrenceOnce {
			break
		}
		day = day.AddDate(0, 0, 1)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Before(runs[j]) })
	return runs
}
