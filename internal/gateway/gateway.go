// Package gateway delivers campaign email through the owner's configured
// provider. The provider is resolved once per account into a concrete
// Sender; the gateway wraps it with recipient validation, tracking
// instrumentation, and a retry loop.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/logger"
)

// ErrInvalidRecipient is returned before any provider is contacted.
var ErrInvalidRecipient = errors.New("invalid recipient address")

// ErrNoProvider is returned when an account has no usable credentials.
var ErrNoProvider = errors.New("no email provider configured")

// AuthError marks a provider rejection that retrying cannot fix: bad API
// key, expired token, revoked credentials. The retry loop stops on it.
type AuthError struct {
	Provider domain.Provider
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.Provider, e.Message)
}

// Sender is a single delivery backend.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
	Provider() domain.Provider
}

// ConfirmsDelivery reports whether a successful send through the provider
// means the message was accepted for delivery (HTTP APIs confirm
// synchronously) rather than merely handed off (SMTP).
func ConfirmsDelivery(p domain.Provider) bool {
	return p != domain.ProviderSMTP
}

// Options tunes the gateway retry behaviour.
type Options struct {
	MaxRetries int           // attempts after the first (default 3)
	BaseDelay  time.Duration // first backoff (default 1s)
	MaxDelay   time.Duration // backoff cap (default 10s)
}

// Gateway wraps a resolved Sender with validation, instrumentation, and
// retries.
type Gateway struct {
	sender     Sender
	instrument *Instrumenter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	log   *logger.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// New resolves the account's provider and builds a gateway around it.
// trackingBaseURL is woven into open/click instrumentation; pass the
// public server URL.
func New(account *domain.EmailAccount, trackingBaseURL string, opts Options) (*Gateway, error) {
	provider := account.ResolveProvider()
	if provider == "" {
		return nil, ErrNoProvider
	}
	sender, err := newSender(provider, account)
	if err != nil {
		return nil, err
	}
	return NewWithSender(sender, trackingBaseURL, opts), nil
}

// NewWithSender builds a gateway around an explicit sender. Tests use it to
// inject fakes.
func NewWithSender(sender Sender, trackingBaseURL string, opts Options) *Gateway {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	return &Gateway{
		sender:     sender,
		instrument: NewInstrumenter(trackingBaseURL),
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		log:        logger.With("gateway"),
		sleep:      sleepCtx,
	}
}

// newSender is the provider strategy table.
func newSender(p domain.Provider, account *domain.EmailAccount) (Sender, error) {
	switch p {
	case domain.ProviderGmailAPI:
		return NewGmailSender(account.GmailToken), nil
	case domain.ProviderSendGrid:
		return NewSendGridSender(account.SendGridKey), nil
	case domain.ProviderResend:
		return NewResendSender(account.ResendKey), nil
	case domain.ProviderSES:
		return NewSESSender(account.AWSAccessKey, account.AWSSecretKey, account.AWSRegion), nil
	case domain.ProviderBrevo:
		return NewBrevoSender(account.BrevoKey), nil
	case domain.ProviderSMTP:
		return NewSMTPSender(account.SMTPHost, account.SMTPPort, account.SenderEmail, account.SMTPPassword), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", p)
	}
}

// Provider returns the resolved backend.
func (g *Gateway) Provider() domain.Provider { return g.sender.Provider() }

// Send validates, instruments, and delivers one message, retrying transient
// failures with exponential backoff. Auth failures and 4xx rejections other
// than 429 are final; the recipient is validated before any provider
// traffic.
func (g *Gateway) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if !domain.ValidEmail(msg.To) {
		return nil, ErrInvalidRecipient
	}
	if msg.MessageID != "" {
		msg.HTML = g.instrument.Instrument(msg.HTML, msg.MessageID)
	}

	var lastResult *domain.SendResult
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt)
			g.log.Warn("retrying send",
				"provider", string(g.sender.Provider()),
				"attempt", attempt,
				"recipient", msg.To,
				"delay", delay.String())
			if err := g.sleep(ctx, delay); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		result, err := g.sender.Send(ctx, msg)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr, lastResult = err, nil
			continue
		}
		if result.Success {
			return result, nil
		}
		// A 4xx other than 429 means the provider rejected this request
		// itself; replaying it gets the same answer.
		if result.StatusCode >= 400 && result.StatusCode < 500 && result.StatusCode != http.StatusTooManyRequests {
			return result, nil
		}
		lastResult, lastErr = result, nil
	}

	if lastResult != nil {
		return lastResult, nil
	}
	return nil, fmt.Errorf("send failed after %d attempts: %w", g.maxRetries+1, lastErr)
}

// backoff doubles from baseDelay, capped at maxDelay.
func (g *Gateway) backoff(attempt int) time.Duration {
	d := float64(g.baseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(g.maxDelay) {
		d = float64(g.maxDelay)
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
