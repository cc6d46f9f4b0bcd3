// Package ledger owns the communication log: one row per message per
// recipient, moving monotonically through
// queued -> sent -> delivered -> opened -> clicked (failed is terminal).
// The dispatcher writes the left side of the chain; tracking callbacks and
// provider receipts advance the right side.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/latticecrm/lattice/internal/domain"
)

// ErrNotFound is returned when no log row matches the message id.
var ErrNotFound = errors.New("communication log not found")

// Counts is the per-status aggregate for one campaign. A row counts for a
// stage when its timestamp is set or its status has reached that stage, so
// receipt-only rows still count as delivered.
type Counts struct {
	Sent      int
	Delivered int
	Opened    int
	Clicked   int
	Failed    int
}

// Store implements ledger persistence against PostgreSQL.
type Store struct{ db *sql.DB }

// NewStore creates a Postgres-backed ledger store.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const logColumns = `id, campaign_id, customer_id, message_id, recipient, subject,
	status, sent_at, delivered_at, opened_at, clicked_at,
	COALESCE(failure_reason,''), metadata, created_at, updated_at`

func scanLog(row interface{ Scan(...interface{}) error }) (*domain.CommunicationLog, error) {
	l := &domain.CommunicationLog{}
	var metadata []byte
	err := row.Scan(
		&l.ID, &l.CampaignID, &l.CustomerID, &l.MessageID, &l.Recipient, &l.Subject,
		&l.Status, &l.SentAt, &l.DeliveredAt, &l.OpenedAt, &l.ClickedAt,
		&l.FailureReason, &metadata, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &l.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal log metadata: %w", err)
		}
	}
	return l, nil
}

// CreateQueued inserts a fresh queued row for a recipient.
func (s *Store) CreateQueued(ctx context.Context, l *domain.CommunicationLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.Status = domain.LogQueued

	metadata, err := json.Marshal(l.Metadata)
	if err != nil {
		return fmt.Errorf("marshal log metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crm_communication_logs
			(id, campaign_id, customer_id, message_id, recipient, subject,
			 status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`, l.ID, l.CampaignID, l.CustomerID, l.MessageID, l.Recipient, l.Subject,
		l.Status, metadata)
	if err != nil {
		return fmt.Errorf("create log: %w", err)
	}
	return nil
}

// CreateFailed inserts a row already in the failed state. Used for invalid
// recipients and for recipients cut off by a campaign timeout.
func (s *Store) CreateFailed(ctx context.Context, l *domain.CommunicationLog, reason string) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.Status = domain.LogFailed
	l.FailureReason = reason

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_communication_logs
			(id, campaign_id, customer_id, message_id, recipient, subject,
			 status, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`, l.ID, l.CampaignID, l.CustomerID, l.MessageID, l.Recipient, l.Subject,
		l.Status, reason)
	if err != nil {
		return fmt.Errorf("create failed log: %w", err)
	}
	return nil
}

// MarkSent moves a queued row to sent.
func (s *Store) MarkSent(ctx context.Context, messageID string, at time.Time) error {
	return s.exec(ctx, `
		UPDATE crm_communication_logs
		SET status = $1, sent_at = $2, updated_at = NOW()
		WHERE message_id = $3 AND status = 'queued'
	`, domain.LogSent, at, messageID)
}

// MarkDelivered records an immediate provider acceptance: HTTP API
// providers confirm synchronously, so the row jumps straight to delivered.
func (s *Store) MarkDelivered(ctx context.Context, messageID string, at time.Time) error {
	return s.exec(ctx, `
		UPDATE crm_communication_logs
		SET status = $1, sent_at = COALESCE(sent_at, $2), delivered_at = $2, updated_at = NOW()
		WHERE message_id = $3 AND status IN ('queued','sent')
	`, domain.LogDelivered, at, messageID)
}

// MarkFailed moves a row to the terminal failed state with a reason.
func (s *Store) MarkFailed(ctx context.Context, messageID, reason string) error {
	return s.exec(ctx, `
		UPDATE crm_communication_logs
		SET status = $1, failure_reason = $2, updated_at = NOW()
		WHERE message_id = $3 AND status = 'queued'
	`, domain.LogFailed, reason, messageID)
}

func (s *Store) exec(ctx context.Context, q string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update log: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByMessageID fetches one row by its tracking handle.
func (s *Store) GetByMessageID(ctx context.Context, messageID string) (*domain.CommunicationLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM crm_communication_logs WHERE message_id = $1`,
		messageID)
	l, err := scanLog(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}
	return l, nil
}

// RecordOpen advances the row for messageID through an open event.
// Idempotent; no-op when the row is already opened or clicked.
func (s *Store) RecordOpen(ctx context.Context, messageID string, now time.Time) error {
	return s.transition(ctx, messageID, func(l *domain.CommunicationLog) bool {
		return l.ApplyOpen(now)
	})
}

// RecordClick advances the row through a click, backfilling the open.
func (s *Store) RecordClick(ctx context.Context, messageID string, now time.Time) error {
	return s.transition(ctx, messageID, func(l *domain.CommunicationLog) bool {
		return l.ApplyClick(now)
	})
}

// ApplyReceipt applies a provider delivery receipt.
func (s *Store) ApplyReceipt(ctx context.Context, messageID string, status domain.LogStatus, at time.Time) error {
	return s.transition(ctx, messageID, func(l *domain.CommunicationLog) bool {
		return l.ApplyReceipt(status, at)
	})
}

// RecordFeedback stores a feedback response in the row metadata and counts
// the interaction as a click.
func (s *Store) RecordFeedback(ctx context.Context, messageID, response string, now time.Time) error {
	return s.transition(ctx, messageID, func(l *domain.CommunicationLog) bool {
		changed := l.ApplyClick(now)
		if l.Metadata == nil {
			l.Metadata = map[string]interface{}{}
		}
		if l.Metadata["feedback"] != response {
			l.Metadata["feedback"] = response
			l.Metadata["feedback_at"] = now.UTC().Format(time.RFC3339)
			changed = true
		}
		return changed
	})
}

// transition loads the row under a row lock, applies the pure state change,
// and persists it only when something moved.
func (s *Store) transition(ctx context.Context, messageID string, apply func(*domain.CommunicationLog) bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM crm_communication_logs WHERE message_id = $1 FOR UPDATE`,
		messageID)
	l, err := scanLog(row)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load log for transition: %w", err)
	}

	if !apply(l) {
		return nil
	}

	metadata, err := json.Marshal(l.Metadata)
	if err != nil {
		return fmt.Errorf("marshal log metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE crm_communication_logs
		SET status = $1, sent_at = $2, delivered_at = $3, opened_at = $4,
		    clicked_at = $5, metadata = $6, updated_at = NOW()
		WHERE message_id = $7
	`, l.Status, l.SentAt, l.DeliveredAt, l.OpenedAt, l.ClickedAt, metadata, messageID)
	if err != nil {
		return fmt.Errorf("persist transition: %w", err)
	}
	return tx.Commit()
}

// ListForCampaign returns the campaign's rows, newest first.
func (s *Store) ListForCampaign(ctx context.Context, campaignID string, limit, offset int) ([]domain.CommunicationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM crm_communication_logs
		WHERE campaign_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []domain.CommunicationLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// CountsForCampaign aggregates status counts in one pass. Timestamps win
// over status at every stage.
func (s *Store) CountsForCampaign(ctx context.Context, campaignID string) (*Counts, error) {
	c := &Counts{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE sent_at IS NOT NULL OR status IN ('sent','delivered','opened','clicked')),
			COUNT(*) FILTER (WHERE delivered_at IS NOT NULL OR status IN ('delivered','opened','clicked')),
			COUNT(*) FILTER (WHERE opened_at IS NOT NULL OR status IN ('opened','clicked')),
			COUNT(*) FILTER (WHERE clicked_at IS NOT NULL OR status = 'clicked'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM crm_communication_logs
		WHERE campaign_id = $1
	`, campaignID).Scan(&c.Sent, &c.Delivered, &c.Opened, &c.Clicked, &c.Failed)
	if err != nil {
		return nil, fmt.Errorf("campaign counts: %w", err)
	}
	return c, nil
}

// DeleteForCampaign removes every row for a campaign. Called when the
// campaign itself is deleted.
func (s *Store) DeleteForCampaign(ctx context.Context, campaignID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM crm_communication_logs WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return fmt.Errorf("delete logs: %w", err)
	}
	return nil
}
