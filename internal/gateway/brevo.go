package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/logger"
)

// BrevoSender sends through the Brevo (ex Sendinblue) transactional API.
type BrevoSender struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewBrevoSender creates a Brevo sender.
func NewBrevoSender(apiKey string) *BrevoSender {
	return &BrevoSender{
		apiKey:  apiKey,
		baseURL: "https://api.brevo.com/v3",
		client:  defaultHTTPClient,
	}
}

func (s *BrevoSender) Provider() domain.Provider { return domain.ProviderBrevo }

// Send delivers a single email through Brevo.
func (s *BrevoSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if s.apiKey == "" {
		return nil, &AuthError{Provider: domain.ProviderBrevo, Message: "API key not configured"}
	}

	payload := map[string]interface{}{
		"sender":      map[string]string{"name": msg.FromName, "email": msg.From},
		"to":          []map[string]string{{"email": msg.To, "name": msg.ToName}},
		"subject":     msg.Subject,
		"htmlContent": msg.HTML,
	}
	if msg.Text != "" {
		payload["textContent"] = msg.Text
	}

	status, body, err := postJSON(ctx, s.client, s.baseURL+"/smtp/email",
		map[string]string{"api-key": s.apiKey}, payload)
	if err != nil {
		return nil, err
	}
	if isAuthStatus(status) {
		return nil, &AuthError{Provider: domain.ProviderBrevo, Message: string(body)}
	}
	if status >= 400 {
		return &domain.SendResult{
			Success:    false,
			Provider:   domain.ProviderBrevo,
			StatusCode: status,
			Message:    fmt.Sprintf("Brevo error %d: %s", status, string(body)),
		}, nil
	}

	var parsed struct {
		MessageID string `json:"messageId"`
	}
	_ = json.Unmarshal(body, &parsed)

	logger.Info("sent via brevo", "recipient", msg.To, "message_id", msg.MessageID)
	return &domain.SendResult{
		Success:    true,
		Provider:   domain.ProviderBrevo,
		ProviderID: parsed.MessageID,
		StatusCode: status,
	}, nil
}
