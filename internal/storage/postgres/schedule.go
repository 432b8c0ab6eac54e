package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"campaign_scheduler/internal/domain"
)

type ScheduleStore struct {
	db *sqlx.DB
}

func NewScheduleStore(db *sqlx.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

const scheduleColumns = `
	id, campaign_id, timezone, recurrence, times, explicit_times,
	start_date, end_date, active, auto_post, daily_limit,
	selected_variant_index, post_interval_min, post_interval_max,
	images_per_post, created_at`

func scanSchedule(row interface{ Scan(...any) error }) (*domain.Schedule, error) {
	var sc domain.Schedule
	var times pq.StringArray
	var explicit explicitTimes
	err := row.Scan(
		&sc.ID, &sc.CampaignID, &sc.Timezone, &sc.Recurrence, &times, &explicit,
		&sc.StartDate, &sc.EndDate, &sc.Active, &sc.AutoPost, &sc.DailyLimit,
		&sc.SelectedVariantIndex, &sc.PostIntervalMin, &sc.PostIntervalMax,
		&sc.ImagesPerPost, &sc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sc.Times = times
	sc.ExplicitTimes = explicit
	return &sc, nil
}

func (s *ScheduleStore) Create(ctx context.Context, sc *domain.Schedule) error {
	if sc.ID == uuid.Nil {
		sc.ID = uuid.New()
	}
	sc.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO schedules (
			id, campaign_id, timezone, recurrence, times, explicit_times,
			start_date, end_date, active, auto_post, daily_limit,
			selected_variant_index, post_interval_min, post_interval_max,
			images_per_post, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		sc.ID, sc.CampaignID, sc.Timezone, sc.Recurrence, pq.Array(sc.Times),
		explicitTimes(sc.ExplicitTimes), sc.StartDate, sc.EndDate, sc.Active,
		sc.AutoPost, sc.DailyLimit, sc.SelectedVariantIndex,
		sc.PostIntervalMin, sc.PostIntervalMax, sc.ImagesPerPost, sc.CreatedAt,
	)
	return err
}

func (s *ScheduleStore) Get(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `SELECT` + scheduleColumns + ` FROM schedules WHERE id = $1`

	sc, err := scanSchedule(GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// ListActiveAutoPost returns every active schedule the dispatcher should
// evaluate on a tick.
func (s *ScheduleStore) ListActiveAutoPost(ctx context.Context) ([]domain.Schedule, error) {
	query := `SELECT` + scheduleColumns + `
		FROM schedules
		WHERE active = TRUE AND auto_post = TRUE
		ORDER BY created_at`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *sc)
	}
	return schedules, rows.Err()
}

// DeactivateByCampaign retires the campaign's schedules; a reschedule
// supersedes rather than mutates.
func (s *ScheduleStore) DeactivateByCampaign(ctx context.Context, campaignID uuid.UUID) error {
	query := `UPDATE schedules SET active = FALSE WHERE campaign_id = $1 AND active = TRUE`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, campaignID)
	return err
}
