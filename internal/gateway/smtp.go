package gateway

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/logger"
)

// SMTPSender sends through a plain SMTP relay with password auth. It is the
// last-resort provider: most hosting networks block outbound 587, and the
// relay gives no delivery confirmation, so successful sends report "sent"
// rather than "delivered".
type SMTPSender struct {
	host     string
	port     int
	username string
	password string

	// sendMail is swappable for tests; net/smtp has no interface seam.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(host string, port int, username, password string) *SMTPSender {
	if port == 0 {
		port = 587
	}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		sendMail: smtp.SendMail,
	}
}

func (s *SMTPSender) Provider() domain.Provider { return domain.ProviderSMTP }

// Send delivers a single email over SMTP. The context deadline is not
// honored mid-connection (net/smtp limitation); the dispatcher's per-send
// timeout still bounds the overall attempt via its own clock.
func (s *SMTPSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if s.host == "" || s.password == "" {
		return nil, &AuthError{Provider: domain.ProviderSMTP, Message: "SMTP relay not configured"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s <%s>\r\n", msg.FromName, msg.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)

	if err := s.sendMail(addr, auth, s.username, []string{msg.To}, []byte(b.String())); err != nil {
		low := strings.ToLower(err.Error())
		if strings.Contains(low, "535") || strings.Contains(low, "authentication") {
			return nil, &AuthError{Provider: domain.ProviderSMTP, Message: err.Error()}
		}
		return &domain.SendResult{
			Success:  false,
			Provider: domain.ProviderSMTP,
			Message:  err.Error(),
		}, nil
	}

	logger.Info("sent via smtp", "recipient", msg.To, "message_id", msg.MessageID)
	return &domain.SendResult{
		Success:  true,
		Provider: domain.ProviderSMTP,
	}, nil
}
