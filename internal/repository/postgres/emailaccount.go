package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/latticecrm/lattice/internal/campaign"
	"github.com/latticecrm/lattice/internal/domain"
)

// ErrAccountNotFound means the owner has never saved email settings. It is
// the campaign sentinel so the service can tell absence from a store error.
var ErrAccountNotFound = campaign.ErrAccountNotFound

// EmailAccountRepo stores per-owner sending configuration. One row per
// owner, merged on write so a settings update without a secret never wipes
// the stored one (the API never echoes credentials back to the client).
type EmailAccountRepo struct{ db *sql.DB }

// NewEmailAccountRepo creates a Postgres-backed email account repository.
func NewEmailAccountRepo(db *sql.DB) *EmailAccountRepo { return &EmailAccountRepo{db: db} }

const accountColumns = `
	id, owner_id, COALESCE(provider, ''), sender_email, sender_name,
	COALESCE(smtp_host, ''), COALESCE(smtp_port, 0), COALESCE(smtp_password, ''),
	COALESCE(gmail_token, ''), COALESCE(aws_access_key, ''),
	COALESCE(aws_secret_key, ''), COALESCE(aws_region, ''),
	COALESCE(sendgrid_key, ''), COALESCE(resend_key, ''), COALESCE(brevo_key, ''),
	is_configured, COALESCE(last_tested_at, to_timestamp(0)), created_at, updated_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (*domain.EmailAccount, error) {
	a := &domain.EmailAccount{}
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Provider, &a.SenderEmail, &a.SenderName,
		&a.SMTPHost, &a.SMTPPort, &a.SMTPPassword,
		&a.GmailToken, &a.AWSAccessKey, &a.AWSSecretKey, &a.AWSRegion,
		&a.SendGridKey, &a.ResendKey, &a.BrevoKey,
		&a.IsConfigured, &a.LastTestedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *EmailAccountRepo) GetByOwner(ctx context.Context, ownerID string) (*domain.EmailAccount, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM crm_email_accounts
		WHERE owner_id = $1
	`, ownerID)

	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email account: %w", err)
	}
	return a, nil
}

// Upsert saves the owner's settings. Empty credential fields keep whatever
// is already stored; is_configured is recomputed from the merged row.
func (r *EmailAccountRepo) Upsert(ctx context.Context, a *domain.EmailAccount) error {
	existing, err := r.GetByOwner(ctx, a.OwnerID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	if existing != nil {
		mergeCredentials(a, existing)
		a.ID = existing.ID
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.IsConfigured = a.ResolveProvider() != ""

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO crm_email_accounts
			(id, owner_id, provider, sender_email, sender_name,
			 smtp_host, smtp_port, smtp_password, gmail_token,
			 aws_access_key, aws_secret_key, aws_region,
			 sendgrid_key, resend_key, brevo_key,
			 is_configured, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		ON CONFLICT (owner_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			sender_email = EXCLUDED.sender_email,
			sender_name = EXCLUDED.sender_name,
			smtp_host = EXCLUDED.smtp_host,
			smtp_port = EXCLUDED.smtp_port,
			smtp_password = EXCLUDED.smtp_password,
			gmail_token = EXCLUDED.gmail_token,
			aws_access_key = EXCLUDED.aws_access_key,
			aws_secret_key = EXCLUDED.aws_secret_key,
			aws_region = EXCLUDED.aws_region,
			sendgrid_key = EXCLUDED.sendgrid_key,
			resend_key = EXCLUDED.resend_key,
			brevo_key = EXCLUDED.brevo_key,
			is_configured = EXCLUDED.is_configured,
			updated_at = NOW()
	`, a.ID, a.OwnerID, a.Provider, a.SenderEmail, a.SenderName,
		a.SMTPHost, a.SMTPPort, a.SMTPPassword, a.GmailToken,
		a.AWSAccessKey, a.AWSSecretKey, a.AWSRegion,
		a.SendGridKey, a.ResendKey, a.BrevoKey,
		a.IsConfigured)
	if err != nil {
		return fmt.Errorf("upsert email account: %w", err)
	}
	return nil
}

// MarkTested records a successful test send.
func (r *EmailAccountRepo) MarkTested(ctx context.Context, ownerID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_email_accounts SET last_tested_at = $1, updated_at = NOW()
		WHERE owner_id = $2
	`, at, ownerID)
	if err != nil {
		return fmt.Errorf("mark tested: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func mergeCredentials(a, existing *domain.EmailAccount) {
	if a.SMTPHost == "" {
		a.SMTPHost = existing.SMTPHost
	}
	if a.SMTPPort == 0 {
		a.SMTPPort = existing.SMTPPort
	}
	if a.SMTPPassword == "" {
		a.SMTPPassword = existing.SMTPPassword
	}
	if a.GmailToken == "" {
		a.GmailToken = existing.GmailToken
	}
	if a.AWSAccessKey == "" {
		a.AWSAccessKey = existing.AWSAccessKey
	}
	if a.AWSSecretKey == "" {
		a.AWSSecretKey = existing.AWSSecretKey
	}
	if a.AWSRegion == "" {
		a.AWSRegion = existing.AWSRegion
	}
	if a.SendGridKey == "" {
		a.SendGridKey = existing.SendGridKey
	}
	if a.ResendKey == "" {
		a.ResendKey = existing.ResendKey
	}
	if a.BrevoKey == "" {
		a.BrevoKey = existing.BrevoKey
	}
}
