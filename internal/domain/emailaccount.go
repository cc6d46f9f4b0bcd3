package domain

import "time"

// Provider identifies a delivery backend.
type Provider string

const (
	ProviderSMTP     Provider = "smtp"
	ProviderGmailAPI Provider = "gmail-api"
	ProviderSES      Provider = "ses"
	ProviderSendGrid Provider = "sendgrid"
	ProviderResend   Provider = "resend"
	ProviderBrevo    Provider = "brevo"
)

// EmailAccount is an owner's sending configuration: sender identity plus
// credentials for whichever providers they have connected. At most one row
// per owner.
type EmailAccount struct {
	ID           string    `json:"id" db:"id"`
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	Provider     Provider  `json:"provider" db:"provider"`
	SenderEmail  string    `json:"sender_email" db:"sender_email"`
	SenderName   string    `json:"sender_name" db:"sender_name"`
	SMTPHost     string    `json:"-" db:"smtp_host"`
	SMTPPort     int       `json:"-" db:"smtp_port"`
	SMTPPassword string    `json:"-" db:"smtp_password"`
	GmailToken   string    `json:"-" db:"gmail_token"`
	AWSAccessKey string    `json:"-" db:"aws_access_key"`
	AWSSecretKey string    `json:"-" db:"aws_secret_key"`
	AWSRegion    string    `json:"-" db:"aws_region"`
	SendGridKey  string    `json:"-" db:"sendgrid_key"`
	ResendKey    string    `json:"-" db:"resend_key"`
	BrevoKey     string    `json:"-" db:"brevo_key"`
	IsConfigured bool      `json:"is_configured" db:"is_configured"`
	LastTestedAt time.Time `json:"last_tested_at" db:"last_tested_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// HasCredentials reports whether the account carries usable credentials for
// the given provider.
func (a *EmailAccount) HasCredentials(p Provider) bool {
	switch p {
	case ProviderGmailAPI:
		return a.GmailToken != ""
	case ProviderSendGrid:
		return a.SendGridKey != ""
	case ProviderResend:
		return a.ResendKey != ""
	case ProviderSES:
		return a.AWSAccessKey != "" && a.AWSSecretKey != "" && a.AWSRegion != ""
	case ProviderBrevo:
		return a.BrevoKey != ""
	case ProviderSMTP:
		return a.SMTPHost != "" && a.SMTPPassword != ""
	default:
		return false
	}
}

// providerPriority is the auto-detection order when the account does not
// name an explicit provider (or the named one has no credentials).
var providerPriority = []Provider{
	ProviderGmailAPI,
	ProviderSendGrid,
	ProviderResend,
	ProviderSES,
	ProviderBrevo,
	ProviderSMTP,
}

// ResolveProvider picks the backend to use: the explicitly configured
// provider when its credentials are present, otherwise the first provider in
// priority order with credentials. Returns "" when nothing is usable.
func (a *EmailAccount) ResolveProvider() Provider {
	if a.Provider != "" && a.HasCredentials(a.Provider) {
		return a.Provider
	}
	for _, p := range providerPriority {
		if a.HasCredentials(p) {
			return p
		}
	}
	return ""
}

// CredentialFlags reports which secrets are present without exposing them.
// Used by the settings API, which never echoes credentials back.
func (a *EmailAccount) CredentialFlags() map[string]bool {
	return map[string]bool{
		"smtp_password": a.SMTPPassword != "",
		"gmail_token":   a.GmailToken != "",
		"aws_keys":      a.AWSAccessKey != "" && a.AWSSecretKey != "",
		"sendgrid_key":  a.SendGridKey != "",
		"resend_key":    a.ResendKey != "",
		"brevo_key":     a.BrevoKey != "",
	}
}
