package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/logger"
)

// ResendSender sends through the Resend Emails API.
type ResendSender struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewResendSender creates a Resend sender.
func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{
		apiKey:  apiKey,
		baseURL: "https://api.resend.com",
		client:  defaultHTTPClient,
	}
}

func (s *ResendSender) Provider() domain.Provider { return domain.ProviderResend }

// Send delivers a single email through Resend.
func (s *ResendSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if s.apiKey == "" {
		return nil, &AuthError{Provider: domain.ProviderResend, Message: "API key not configured"}
	}

	payload := map[string]interface{}{
		"from":    fmt.Sprintf("%s <%s>", msg.FromName, msg.From),
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
	}
	if msg.Text != "" {
		payload["text"] = msg.Text
	}

	status, body, err := postJSON(ctx, s.client, s.baseURL+"/emails",
		map[string]string{"Authorization": "Bearer " + s.apiKey}, payload)
	if err != nil {
		return nil, err
	}
	if isAuthStatus(status) {
		return nil, &AuthError{Provider: domain.ProviderResend, Message: string(body)}
	}
	if status >= 400 {
		return &domain.SendResult{
			Success:    false,
			Provider:   domain.ProviderResend,
			StatusCode: status,
			Message:    fmt.Sprintf("Resend error %d: %s", status, string(body)),
		}, nil
	}

	var parsed struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &parsed)

	logger.Info("sent via resend", "recipient", msg.To, "message_id", msg.MessageID)
	return &domain.SendResult{
		Success:    true,
		Provider:   domain.ProviderResend,
		ProviderID: parsed.ID,
		StatusCode: status,
	}, nil
}
