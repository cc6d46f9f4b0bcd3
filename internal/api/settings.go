package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/httputil"
	"github.com/latticecrm/lattice/internal/repository/postgres"
)

// emailSettingsView is what the API returns for email settings. Secrets
// never leave the server; their presence is reported as booleans.
type emailSettingsView struct {
	Provider     domain.Provider `json:"provider"`
	SenderEmail  string          `json:"sender_email"`
	SenderName   string          `json:"sender_name"`
	SMTPHost     string          `json:"smtp_host,omitempty"`
	SMTPPort     int             `json:"smtp_port,omitempty"`
	AWSRegion    string          `json:"aws_region,omitempty"`
	IsConfigured bool            `json:"is_configured"`
	Credentials  map[string]bool `json:"credentials"`
}

// emailSettingsInput accepts settings updates. Empty credential fields
// leave the stored secrets untouched.
type emailSettingsInput struct {
	Provider     domain.Provider `json:"provider"`
	SenderEmail  string          `json:"sender_email"`
	SenderName   string          `json:"sender_name"`
	SMTPHost     string          `json:"smtp_host"`
	SMTPPort     int             `json:"smtp_port"`
	SMTPPassword string          `json:"smtp_password"`
	GmailToken   string          `json:"gmail_token"`
	AWSAccessKey string          `json:"aws_access_key"`
	AWSSecretKey string          `json:"aws_secret_key"`
	AWSRegion    string          `json:"aws_region"`
	SendGridKey  string          `json:"sendgrid_key"`
	ResendKey    string          `json:"resend_key"`
	BrevoKey     string          `json:"brevo_key"`
}

func settingsView(a *domain.EmailAccount) emailSettingsView {
	return emailSettingsView{
		Provider:     a.Provider,
		SenderEmail:  a.SenderEmail,
		SenderName:   a.SenderName,
		SMTPHost:     a.SMTPHost,
		SMTPPort:     a.SMTPPort,
		AWSRegion:    a.AWSRegion,
		IsConfigured: a.IsConfigured,
		Credentials:  a.CredentialFlags(),
	}
}

func (h *Handlers) GetEmailSettings(w http.ResponseWriter, r *http.Request) {
	a, err := h.accounts.GetByOwner(r.Context(), ownerID(r))
	if errors.Is(err, postgres.ErrAccountNotFound) {
		httputil.OK(w, settingsView(&domain.EmailAccount{}))
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, settingsView(a))
}

func (h *Handlers) UpdateEmailSettings(w http.ResponseWriter, r *http.Request) {
	var in emailSettingsInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	if in.SenderEmail != "" && !domain.ValidEmail(in.SenderEmail) {
		httputil.BadRequest(w, "sender_email is not a valid address")
		return
	}

	a := &domain.EmailAccount{
		OwnerID:      ownerID(r),
		Provider:     in.Provider,
		SenderEmail:  in.SenderEmail,
		SenderName:   in.SenderName,
		SMTPHost:     in.SMTPHost,
		SMTPPort:     in.SMTPPort,
		SMTPPassword: in.SMTPPassword,
		GmailToken:   in.GmailToken,
		AWSAccessKey: in.AWSAccessKey,
		AWSSecretKey: in.AWSSecretKey,
		AWSRegion:    in.AWSRegion,
		SendGridKey:  in.SendGridKey,
		ResendKey:    in.ResendKey,
		BrevoKey:     in.BrevoKey,
	}
	if err := h.accounts.Upsert(r.Context(), a); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, settingsView(a))
}

// TestEmailSettings sends a message through the configured provider to the
// sender's own address. A 200 with success=false means the provider
// rejected the send; only a confirmed send updates last_tested_at.
func (h *Handlers) TestEmailSettings(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	a, err := h.accounts.GetByOwner(r.Context(), owner)
	if errors.Is(err, postgres.ErrAccountNotFound) {
		httputil.BadRequest(w, "email settings are not configured")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if a.ResolveProvider() == "" {
		httputil.BadRequest(w, "email settings are not configured")
		return
	}

	mailer, err := h.newMailer(a)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	msg := &domain.EmailMessage{
		To:        a.SenderEmail,
		ToName:    a.SenderName,
		From:      a.SenderEmail,
		FromName:  a.SenderName,
		Subject:   "Test email from your CRM",
		HTML:      "<p>Your email settings are working. This message confirms the provider connection.</p>",
		MessageID: fmt.Sprintf("test_%d_%s", time.Now().UnixNano(), uuid.New().String()[:8]),
	}
	res, err := mailer.Send(r.Context(), msg)
	if err != nil {
		httputil.OK(w, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	if !res.Success {
		httputil.OK(w, map[string]interface{}{"success": false, "message": res.Message})
		return
	}

	if err := h.accounts.MarkTested(r.Context(), owner, time.Now()); err != nil {
		h.log.Warn("mark tested failed", "owner_id", owner, "error", err.Error())
	}
	httputil.OK(w, map[string]interface{}{
		"success":  true,
		"provider": string(mailer.Provider()),
	})
}
