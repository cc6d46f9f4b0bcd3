package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/logger"
)

// GmailSender sends through the Gmail API (users.messages.send) using an
// OAuth2 access token stored on the account. The token transport comes from
// x/oauth2 so refresh flows slot in without touching this type.
type GmailSender struct {
	baseURL string
	client  *http.Client
}

// NewGmailSender creates a Gmail API sender around the given access token.
func NewGmailSender(accessToken string) *GmailSender {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	client := oauth2.NewClient(context.Background(), src)
	client.Timeout = 60 * time.Second
	return &GmailSender{
		baseURL: "https://gmail.googleapis.com/gmail/v1",
		client:  client,
	}
}

func (s *GmailSender) Provider() domain.Provider { return domain.ProviderGmailAPI }

// Send delivers a single email through the Gmail API.
func (s *GmailSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	raw := base64.URLEncoding.EncodeToString([]byte(buildMIME(msg)))

	status, body, err := postJSON(ctx, s.client, s.baseURL+"/users/me/messages/send",
		nil, map[string]string{"raw": raw})
	if err != nil {
		// The oauth2 transport surfaces token problems as request errors
		if strings.Contains(err.Error(), "oauth2") {
			return nil, &AuthError{Provider: domain.ProviderGmailAPI, Message: err.Error()}
		}
		return nil, err
	}
	if isAuthStatus(status) {
		return nil, &AuthError{Provider: domain.ProviderGmailAPI, Message: string(body)}
	}
	if status >= 400 {
		return &domain.SendResult{
			Success:    false,
			Provider:   domain.ProviderGmailAPI,
			StatusCode: status,
			Message:    fmt.Sprintf("Gmail API error %d: %s", status, string(body)),
		}, nil
	}

	var parsed struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &parsed)

	logger.Info("sent via gmail", "recipient", msg.To, "message_id", msg.MessageID)
	return &domain.SendResult{
		Success:    true,
		Provider:   domain.ProviderGmailAPI,
		ProviderID: parsed.ID,
		StatusCode: status,
	}, nil
}

// buildMIME assembles the RFC 2822 message Gmail expects in the raw field.
func buildMIME(msg *domain.EmailMessage) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s <%s>\r\n", msg.FromName, msg.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	for k, v := range msg.Headers {
		b.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return b.String()
}
