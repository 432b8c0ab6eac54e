package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"campaign_scheduler/internal/domain"
)

// ActionLogStore is append-only; entries are never updated or deleted
// here. Retention is an external concern.
type ActionLogStore struct {
	db *sqlx.DB
}

func NewActionLogStore(db *sqlx.DB) *ActionLogStore {
	return &ActionLogStore{db: db}
}

func (s *ActionLogStore) Append(ctx context.Context, e *domain.ActionLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RunAt.IsZero() {
		e.RunAt = time.Now().UTC()
	}

	query := `
		INSERT INTO post_logs (id, campaign_id, draft_id, run_at, action, details)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		e.ID, e.CampaignID, e.DraftID, e.RunAt, e.Action, jsonMap(e.Details),
	)
	return err
}

// ListByCampaign returns a page of entries, newest first, with the
// unpaginated total.
func (s *ActionLogStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]domain.ActionLogEntry, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM post_logs WHERE campaign_id = $1`
	if err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, countQuery, campaignID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, campaign_id, draft_id, run_at, action, details
		FROM post_logs
		WHERE campaign_id = $1
		ORDER BY run_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query, campaignID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.ActionLogEntry
	for rows.Next() {
		var e domain.ActionLogEntry
		var details jsonMap
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.DraftID, &e.RunAt, &e.Action, &details); err != nil {
			return nil, 0, err
		}
		e.Details = details
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
