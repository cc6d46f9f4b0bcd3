// Package postgres holds the SQL-backed repositories shared across feature
// packages.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/latticecrm/lattice/internal/campaign"
	"github.com/latticecrm/lattice/internal/domain"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, owner_id, segment_id, name, subject, body, variables,
	status, total_recipients, sent_count, delivered_count, opened_count,
	clicked_count, failed_count, delivery_rate, open_rate, click_rate,
	COALESCE(failure_reason, ''), created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var vars pq.StringArray
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.SegmentID, &c.Name,
		&c.Template.Subject, &c.Template.Body, &vars,
		&c.Status, &c.Stats.TotalRecipients, &c.Stats.Sent, &c.Stats.Delivered,
		&c.Stats.Opened, &c.Stats.Clicked, &c.Stats.Failed,
		&c.Stats.DeliveryRate, &c.Stats.OpenRate, &c.Stats.ClickRate,
		&c.Stats.FailureReason, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Template.Variables = vars
	return c, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crm_campaigns
			(id, owner_id, segment_id, name, subject, body, variables,
			 status, total_recipients, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, c.ID, c.OwnerID, c.SegmentID, c.Name,
		c.Template.Subject, c.Template.Body, pq.Array(c.Template.Variables),
		c.Status, c.Stats.TotalRecipients)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM crm_campaigns
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)

	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, ownerID string) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM crm_campaigns
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateStatus performs a guarded transition: the row must currently be in
// the expected state or nothing is written.
func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, from, to domain.CampaignStatus, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_campaigns
		SET status = $1, failure_reason = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, to, reason, id, from)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) UpdateStats(ctx context.Context, id string, stats domain.CampaignStats) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_campaigns
		SET total_recipients = $1, sent_count = $2, delivered_count = $3,
		    opened_count = $4, clicked_count = $5, failed_count = $6,
		    delivery_rate = $7, open_rate = $8, click_rate = $9,
		    failure_reason = NULLIF($10, ''), updated_at = NOW()
		WHERE id = $11
	`, stats.TotalRecipients, stats.Sent, stats.Delivered,
		stats.Opened, stats.Clicked, stats.Failed,
		stats.DeliveryRate, stats.OpenRate, stats.ClickRate,
		stats.FailureReason, id)
	if err != nil {
		return fmt.Errorf("update campaign stats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM crm_campaigns WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}
