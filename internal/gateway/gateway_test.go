package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/latticecrm/lattice/internal/domain"
)

// scriptedSender returns its results in order, one per attempt.
type scriptedSender struct {
	results []*domain.SendResult
	errs    []error
	calls   int
}

func (s *scriptedSender) Provider() domain.Provider { return domain.ProviderSendGrid }

func (s *scriptedSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i], s.errs[i]
}

func instantGateway(s Sender) *Gateway {
	g := NewWithSender(s, "https://track.test", Options{MaxRetries: 3})
	g.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return g
}

func msgTo(to string) *domain.EmailMessage {
	return &domain.EmailMessage{
		To: to, From: "crm@example.com", FromName: "CRM",
		Subject: "hi", HTML: "<p>hi</p>",
	}
}

func TestSendRetriesTransientFailure(t *testing.T) {
	s := &scriptedSender{
		results: []*domain.SendResult{
			{Success: false, Provider: domain.ProviderSendGrid, StatusCode: 503},
			{Success: false, Provider: domain.ProviderSendGrid, StatusCode: 503},
			{Success: true, Provider: domain.ProviderSendGrid},
		},
		errs: []error{nil, nil, nil},
	}
	g := instantGateway(s)

	res, err := g.Send(context.Background(), msgTo("ada@example.com"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success {
		t.Error("send did not succeed after retries")
	}
	if s.calls != 3 {
		t.Errorf("calls = %d, want 3", s.calls)
	}
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	fail := &domain.SendResult{Success: false, Provider: domain.ProviderSendGrid, StatusCode: 500}
	s := &scriptedSender{
		results: []*domain.SendResult{fail},
		errs:    []error{nil},
	}
	g := instantGateway(s)

	res, err := g.Send(context.Background(), msgTo("ada@example.com"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Success {
		t.Error("expected final failure result")
	}
	// 1 initial + 3 retries
	if s.calls != 4 {
		t.Errorf("calls = %d, want 4", s.calls)
	}
}

// A plain 4xx (bad payload, suppressed recipient) is final: the retry
// budget is for transient failures, and replaying the same request just
// gets the same rejection. 429 stays retryable.
func TestSendDoesNotRetryPermanentRejection(t *testing.T) {
	fail := &domain.SendResult{Success: false, Provider: domain.ProviderSendGrid, StatusCode: 400, Message: "bad payload"}
	s := &scriptedSender{
		results: []*domain.SendResult{fail},
		errs:    []error{nil},
	}
	g := instantGateway(s)

	res, err := g.Send(context.Background(), msgTo("ada@example.com"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Success || res.StatusCode != 400 {
		t.Errorf("result = %+v, want the 400 rejection", res)
	}
	if s.calls != 1 {
		t.Errorf("permanent rejection was retried: %d calls", s.calls)
	}
}

func TestSendRetriesRateLimit(t *testing.T) {
	s := &scriptedSender{
		results: []*domain.SendResult{
			{Success: false, Provider: domain.ProviderSendGrid, StatusCode: 429},
			{Success: true, Provider: domain.ProviderSendGrid},
		},
		errs: []error{nil, nil},
	}
	g := instantGateway(s)

	res, err := g.Send(context.Background(), msgTo("ada@example.com"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success {
		t.Error("send did not succeed after rate-limit retry")
	}
	if s.calls != 2 {
		t.Errorf("calls = %d, want 2", s.calls)
	}
}

func TestSendAbortsOnAuthError(t *testing.T) {
	s := &scriptedSender{
		results: []*domain.SendResult{nil},
		errs:    []error{&AuthError{Provider: domain.ProviderSendGrid, Message: "bad key"}},
	}
	g := instantGateway(s)

	_, err := g.Send(context.Background(), msgTo("ada@example.com"))
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("want AuthError, got %v", err)
	}
	if s.calls != 1 {
		t.Errorf("auth failure was retried: %d calls", s.calls)
	}
}

func TestSendRejectsInvalidRecipientBeforeProvider(t *testing.T) {
	s := &scriptedSender{
		results: []*domain.SendResult{{Success: true}},
		errs:    []error{nil},
	}
	g := instantGateway(s)

	for _, bad := range []string{"", "not-an-email", "a@b", "spaces in@example.com"} {
		if _, err := g.Send(context.Background(), msgTo(bad)); err != ErrInvalidRecipient {
			t.Errorf("recipient %q: err = %v, want ErrInvalidRecipient", bad, err)
		}
	}
	if s.calls != 0 {
		t.Errorf("provider contacted %d times for invalid recipients", s.calls)
	}
}

func TestSendInstrumentsWhenMessageIDPresent(t *testing.T) {
	var captured string
	s := &captureSender{onSend: func(m *domain.EmailMessage) { captured = m.HTML }}
	g := instantGateway(s)

	msg := msgTo("ada@example.com")
	msg.MessageID = "msg-42"
	if _, err := g.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if captured == "<p>hi</p>" {
		t.Error("HTML was not instrumented")
	}

	// No message id means no instrumentation
	plain := msgTo("ada@example.com")
	if _, err := g.Send(context.Background(), plain); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if captured != "<p>hi</p>" {
		t.Errorf("HTML instrumented without a message id: %q", captured)
	}
}

type captureSender struct {
	onSend func(*domain.EmailMessage)
}

func (s *captureSender) Provider() domain.Provider { return domain.ProviderResend }

func (s *captureSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	s.onSend(msg)
	return &domain.SendResult{Success: true, Provider: domain.ProviderResend}, nil
}

func TestConfirmsDelivery(t *testing.T) {
	if ConfirmsDelivery(domain.ProviderSMTP) {
		t.Error("smtp should not confirm delivery")
	}
	for _, p := range []domain.Provider{
		domain.ProviderGmailAPI, domain.ProviderSendGrid, domain.ProviderResend,
		domain.ProviderSES, domain.ProviderBrevo,
	} {
		if !ConfirmsDelivery(p) {
			t.Errorf("%s should confirm delivery", p)
		}
	}
}

func TestResolveProviderPriority(t *testing.T) {
	acct := &domain.EmailAccount{
		SendGridKey: "sg",
		ResendKey:   "re",
		BrevoKey:    "br",
	}
	if got := acct.ResolveProvider(); got != domain.ProviderSendGrid {
		t.Errorf("auto-detect = %s, want sendgrid", got)
	}

	// Explicit preference wins when its credentials exist
	acct.Provider = domain.ProviderBrevo
	if got := acct.ResolveProvider(); got != domain.ProviderBrevo {
		t.Errorf("explicit = %s, want brevo", got)
	}

	// Preference without credentials falls back to priority order
	acct.Provider = domain.ProviderGmailAPI
	if got := acct.ResolveProvider(); got != domain.ProviderSendGrid {
		t.Errorf("fallback = %s, want sendgrid", got)
	}

	if got := (&domain.EmailAccount{}).ResolveProvider(); got != "" {
		t.Errorf("empty account resolved to %s", got)
	}
}
