package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"campaign_scheduler/internal/domain"
)

// DraftStore persists drafts. All status changes go through conditional
// updates keyed on the current status, so the store is safe under
// multiple dispatcher instances.
type DraftStore struct {
	db *sqlx.DB
}

func NewDraftStore(db *sqlx.DB) *DraftStore {
	return &DraftStore{db: db}
}

const draftColumns = `
	id, campaign_id, schedule_id, variant_index, text, char_count,
	hashtags_used, status, last_error, post_id, scheduled_for, posted_at,
	claim_count, created_at, updated_at`

func scanDraft(row interface{ Scan(...any) error }) (*domain.Draft, error) {
	var d domain.Draft
	var hashtags pq.StringArray
	err := row.Scan(
		&d.ID, &d.CampaignID, &d.ScheduleID, &d.VariantIndex, &d.Text, &d.CharCount,
		&hashtags, &d.Status, &d.LastError, &d.PostID, &d.ScheduledFor, &d.PostedAt,
		&d.ClaimCount, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.HashtagsUsed = hashtags
	return &d, nil
}

func (s *DraftStore) CreateBatch(ctx context.Context, drafts []*domain.Draft) error {
	if len(drafts) == 0 {
		return nil
	}

	query := `
		INSERT INTO drafts (
			id, campaign_id, schedule_id, variant_index, text, char_count,
			hashtags_used, status, scheduled_for, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

	exec := GetExecutor(ctx, s.db)
	now := time.Now().UTC()
	for _, d := range drafts {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.CreatedAt = now
		d.UpdatedAt = now
		_, err := exec.ExecContext(ctx, query,
			d.ID, d.CampaignID, d.ScheduleID, d.VariantIndex, d.Text, d.CharCount,
			pq.Array(d.HashtagsUsed), d.Status, d.ScheduledFor, now,
		)
		if err != nil {
			return fmt.Errorf("insert draft %s: %w", d.ID, err)
		}
	}
	return nil
}

func (s *DraftStore) Get(ctx context.Context, id uuid.UUID) (*domain.Draft, error) {
	query := `SELECT` + draftColumns + ` FROM drafts WHERE id = $1`

	draft, err := scanDraft(GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *DraftStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Draft, error) {
	query := `SELECT` + draftColumns + `
		FROM drafts
		WHERE campaign_id = $1
		ORDER BY variant_index, created_at`

	return s.list(ctx, query, campaignID)
}

// ListDue returns pending drafts of a schedule whose scheduled_for has
// arrived, oldest first.
func (s *DraftStore) ListDue(ctx context.Context, scheduleID uuid.UUID, now time.Time, limit int) ([]domain.Draft, error) {
	query := `SELECT` + draftColumns + `
		FROM drafts
		WHERE schedule_id = $1
		  AND status = $2
		  AND scheduled_for <= $3
		ORDER BY scheduled_for ASC
		LIMIT $4`

	return s.list(ctx, query, scheduleID, domain.StatusPending, now, limit)
}

func (s *DraftStore) list(ctx context.Context, query string, args ...any) ([]domain.Draft, error) {
	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []domain.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, *d)
	}
	return drafts, rows.Err()
}

// Claim is the compare-and-set from pending to posting. Exactly one
// caller wins; losing the race is reported as won=false, not an error.
func (s *DraftStore) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE drafts
		SET status = $1, claim_count = claim_count + 1, updated_at = now()
		WHERE id = $2 AND status = $3`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, domain.StatusPosting, id, domain.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkPosted completes posting -> posted, recording the platform post id
// and the publication instant.
func (s *DraftStore) MarkPosted(ctx context.Context, id uuid.UUID, postID string, postedAt time.Time) (bool, error) {
	query := `
		UPDATE drafts
		SET status = $1, post_id = $2, posted_at = $3, last_error = NULL, updated_at = now()
		WHERE id = $4 AND status = $5`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, domain.StatusPosted, postID, postedAt, id, domain.StatusPosting)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkFailed completes posting -> failed with the last error message.
func (s *DraftStore) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) (bool, error) {
	query := `
		UPDATE drafts
		SET status = $1, last_error = $2, updated_at = now()
		WHERE id = $3 AND status = $4`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, domain.StatusFailed, lastError, id, domain.StatusPosting)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Transition performs a generic conditional status change after checking
// it against the lifecycle table.
func (s *DraftStore) Transition(ctx context.Context, id uuid.UUID, from, to domain.DraftStatus, reason *string) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}

	query := `
		UPDATE drafts
		SET status = $1, last_error = COALESCE($2, last_error), updated_at = now()
		WHERE id = $3 AND status = $4`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, to, reason, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Bind moves a generated draft into pending with its compiled post time.
func (s *DraftStore) Bind(ctx context.Context, id, scheduleID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE drafts
		SET status = $1, schedule_id = $2, scheduled_for = $3, updated_at = now()
		WHERE id = $4 AND status = $5`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, domain.StatusPending, scheduleID, at, id, domain.StatusDraft)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SkipActive marks every draft and pending draft of a campaign skipped,
// returning the affected ids. In-flight posting drafts are left alone.
func (s *DraftStore) SkipActive(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		UPDATE drafts
		SET status = $1, updated_at = now()
		WHERE campaign_id = $2 AND status IN ($3, $4)
		RETURNING id`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query,
		domain.StatusSkipped, campaignID, domain.StatusDraft, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReclaimStranded recovers drafts stuck in posting past the cutoff:
// back to pending while under the reclaim budget, to failed beyond it.
func (s *DraftStore) ReclaimStranded(ctx context.Context, cutoff time.Time, maxReclaims int) (reclaimed, expired []domain.DraftRef, err error) {
	exec := GetExecutor(ctx, s.db)

	expireQuery := `
		UPDATE drafts
		SET status = $1, last_error = 'abandoned after repeated stranding', updated_at = now()
		WHERE status = $2 AND updated_at < $3 AND claim_count >= $4
		RETURNING id, campaign_id`

	expired, err = collectRefs(exec.QueryxContext(ctx, expireQuery,
		domain.StatusFailed, domain.StatusPosting, cutoff, maxReclaims))
	if err != nil {
		return nil, nil, fmt.Errorf("expire stranded: %w", err)
	}

	reclaimQuery := `
		UPDATE drafts
		SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < $3 AND claim_count < $4
		RETURNING id, campaign_id`

	reclaimed, err = collectRefs(exec.QueryxContext(ctx, reclaimQuery,
		domain.StatusPending, domain.StatusPosting, cutoff, maxReclaims))
	if err != nil {
		return nil, nil, fmt.Errorf("reclaim stranded: %w", err)
	}

	return reclaimed, expired, nil
}

func collectRefs(rows *sqlx.Rows, err error) ([]domain.DraftRef, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []domain.DraftRef
	for rows.Next() {
		var ref domain.DraftRef
		if err := rows.StructScan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// UpdateContent applies a user edit. The service layer enforces that the
// draft is still editable.
func (s *DraftStore) UpdateContent(ctx context.Context, id uuid.UUID, text string, charCount int, scheduledFor *time.Time) error {
	query := `
		UPDATE drafts
		SET text = $1, char_count = $2, scheduled_for = COALESCE($3, scheduled_for), updated_at = now()
		WHERE id = $4`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, text, charCount, scheduledFor, id)
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

func (s *DraftStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM drafts WHERE id = $1`, id)
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

// CountPostedBetween counts posts published for an account inside a UTC
// window; the rate limiter passes account-local day bounds.
func (s *DraftStore) CountPostedBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM drafts d
		JOIN campaigns c ON c.id = d.campaign_id
		WHERE c.account_id = $1
		  AND d.status = $2
		  AND d.posted_at >= $3
		  AND d.posted_at < $4`

	var count int
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, accountID, domain.StatusPosted, from, to).Scan(&count)
	return count, err
}
