package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/logger"
)

// SESSender sends through AWS SES using the SDK v2.
type SESSender struct {
	region string
	client *sesv2.Client
}

// NewSESSender creates an SES sender. The client is initialized eagerly so
// credential problems surface on the first send, not at construction.
func NewSESSender(accessKey, secretKey, region string) *SESSender {
	if region == "" {
		region = "us-east-1"
	}
	sender := &SESSender{region: region}

	if accessKey != "" && secretKey != "" {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		)
		if err != nil {
			logger.Warn("ses config init failed", "error", err.Error())
		} else {
			sender.client = sesv2.NewFromConfig(cfg)
		}
	}
	return sender
}

func (s *SESSender) Provider() domain.Provider { return domain.ProviderSES }

// Send delivers a single email through SES.
func (s *SESSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if s.client == nil {
		return nil, &AuthError{Provider: domain.ProviderSES, Message: "client not initialized, check credentials"}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", msg.FromName, msg.From)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if msg.MessageID != "" {
		input.EmailTags = []types.MessageTag{
			{Name: aws.String("message_id"), Value: aws.String(msg.MessageID)},
		}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		low := strings.ToLower(err.Error())
		if strings.Contains(low, "credential") || strings.Contains(low, "signature") ||
			strings.Contains(low, "accessdenied") {
			return nil, &AuthError{Provider: domain.ProviderSES, Message: err.Error()}
		}
		return &domain.SendResult{
			Success:  false,
			Provider: domain.ProviderSES,
			Message:  err.Error(),
		}, nil
	}

	providerID := ""
	if result.MessageId != nil {
		providerID = *result.MessageId
	}

	logger.Info("sent via ses", "recipient", msg.To, "message_id", msg.MessageID)
	return &domain.SendResult{
		Success:    true,
		Provider:   domain.ProviderSES,
		ProviderID: providerID,
	}, nil
}
