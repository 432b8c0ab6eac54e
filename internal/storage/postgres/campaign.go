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

type CampaignStore struct {
	db *sqlx.DB
}

func NewCampaignStore(db *sqlx.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

const campaignColumns = `
	id, account_id, title, description, language, hashtags, tone,
	call_to_action, deleted_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*domain.Campaign, error) {
	var c domain.Campaign
	var hashtags pq.StringArray
	err := row.Scan(
		&c.ID, &c.AccountID, &c.Title, &c.Description, &c.Language, &hashtags,
		&c.Tone, &c.CallToAction, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Hashtags = hashtags
	return &c, nil
}

func (s *CampaignStore) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO campaigns (
			id, account_id, title, description, language, hashtags, tone,
			call_to_action, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		c.ID, c.AccountID, c.Title, c.Description, c.Language,
		pq.Array(c.Hashtags), c.Tone, c.CallToAction, now,
	)
	return err
}

func (s *CampaignStore) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	query := `SELECT` + campaignColumns + ` FROM campaigns WHERE id = $1 AND deleted_at IS NULL`

	c, err := scanCampaign(GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignStore) List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Campaign, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM campaigns WHERE account_id = $1 AND deleted_at IS NULL`
	if err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, countQuery, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + campaignColumns + `
		FROM campaigns
		WHERE account_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, total, rows.Err()
}

func (s *CampaignStore) Update(ctx context.Context, c *domain.Campaign) error {
	query := `
		UPDATE campaigns
		SET title = $1, description = $2, language = $3, hashtags = $4,
		    tone = $5, call_to_action = $6, updated_at = now()
		WHERE id = $7 AND deleted_at IS NULL`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		c.Title, c.Description, c.Language, pq.Array(c.Hashtags),
		c.Tone, c.CallToAction, c.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SoftDelete tombstones the campaign. Drafts and logs are kept so that
// in-flight posts can still record their outcome.
func (s *CampaignStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE campaigns SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
