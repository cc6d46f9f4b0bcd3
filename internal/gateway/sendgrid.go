package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/logger"
)

// SendGridSender sends through the SendGrid v3 Mail Send API.
type SendGridSender struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSendGridSender creates a SendGrid sender.
func NewSendGridSender(apiKey string) *SendGridSender {
	return &SendGridSender{
		apiKey:  apiKey,
		baseURL: "https://api.sendgrid.com/v3",
		client:  defaultHTTPClient,
	}
}

func (s *SendGridSender) Provider() domain.Provider { return domain.ProviderSendGrid }

// Send delivers a single email through SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if s.apiKey == "" {
		return nil, &AuthError{Provider: domain.ProviderSendGrid, Message: "API key not configured"}
	}

	content := []map[string]string{{"type": "text/html", "value": msg.HTML}}
	if msg.Text != "" {
		content = []map[string]string{
			{"type": "text/plain", "value": msg.Text},
			{"type": "text/html", "value": msg.HTML},
		}
	}
	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{
				"to":          []map[string]string{{"email": msg.To, "name": msg.ToName}},
				"custom_args": map[string]string{"message_id": msg.MessageID},
			},
		},
		"from":    map[string]string{"email": msg.From, "name": msg.FromName},
		"subject": msg.Subject,
		"content": content,
	}

	status, body, err := postJSON(ctx, s.client, s.baseURL+"/mail/send",
		map[string]string{"Authorization": "Bearer " + s.apiKey}, payload)
	if err != nil {
		return nil, err
	}
	if isAuthStatus(status) {
		return nil, &AuthError{Provider: domain.ProviderSendGrid, Message: string(body)}
	}
	if status >= 400 {
		return &domain.SendResult{
			Success:    false,
			Provider:   domain.ProviderSendGrid,
			StatusCode: status,
			Message:    fmt.Sprintf("SendGrid error %d: %s", status, string(body)),
		}, nil
	}

	logger.Info("sent via sendgrid", "recipient", msg.To, "message_id", msg.MessageID)
	return &domain.SendResult{
		Success:    true,
		Provider:   domain.ProviderSendGrid,
		ProviderID: uuid.New().String(),
		StatusCode: status,
	}, nil
}
