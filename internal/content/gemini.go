package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/latticecrm/lattice/internal/config"
	"github.com/latticecrm/lattice/internal/pkg/httpretry"
	"github.com/latticecrm/lattice/internal/pkg/logger"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient generates content through the Gemini API. Transient HTTP
// failures are retried by the transport.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *httpretry.RetryClient
	log     *logger.Logger
}

// NewGeminiClient builds a Gemini-backed generator from config.
func NewGeminiClient(cfg config.GeminiConfig) *GeminiClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: geminiBaseURL,
		client:  httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
		log:     logger.With("gemini"),
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CampaignContent asks Gemini for a subject and body matching the audience
// the rule tree describes.
func (c *GeminiClient) CampaignContent(ctx context.Context, req ContentRequest) (string, error) {
	aud := analyzeRules(req.Rules)

	var b strings.Builder
	b.WriteString("You are a marketing copywriter. Create an email campaign.\n\nCampaign details:\n")
	if req.CampaignName != "" {
		fmt.Fprintf(&b, "- Campaign name: %q\n", req.CampaignName)
	}
	if req.SegmentDescription != "" {
		fmt.Fprintf(&b, "- Target segment: %q\n", req.SegmentDescription)
	}
	fmt.Fprintf(&b, "- Audience type: %s\n- Offer type: %s\n- Urgency: %s\n", aud.description, aud.offer, aud.urgency)
	b.WriteString(`
Write a subject line under 60 characters and a personalized body with a
clear call to action. Use personalization variables in curly brackets such
as {name}, {total_spent}, {orders_count}.

Format your response exactly as:
Subject: [subject line]

[message body]`)

	text, err := c.generate(ctx, b.String())
	if err != nil {
		return "", err
	}
	if !strings.Contains(text, "Subject:") {
		return "", fmt.Errorf("gemini response missing subject line")
	}
	return text, nil
}

// SuggestSegment asks Gemini to turn a prompt into segment rules.
func (c *GeminiClient) SuggestSegment(ctx context.Context, prompt string) (*SegmentSuggestion, error) {
	p := fmt.Sprintf(`You convert audience descriptions into customer segment rules.

Respond with JSON only:
{"title": "...", "description": "...", "tags": ["..."],
 "rules": {"combinator": "and", "rules": [{"field": "...", "operator": "...", "value": ...}]}}

Allowed fields: total_spent, order_count, average_order_value, last_purchase,
city, state, country, age, gender, occupation, is_active.
Allowed operators: >, <, >=, <=, ==, !=, contains.
Numeric values for last_purchase mean "days ago".

User prompt: %s`, prompt)

	text, err := c.generate(ctx, p)
	if err != nil {
		return nil, err
	}

	var s SegmentSuggestion
	if err := json.Unmarshal([]byte(stripFences(text)), &s); err != nil {
		return nil, fmt.Errorf("parse gemini suggestion: %w", err)
	}
	if len(s.Rules.Rules) == 0 {
		return nil, fmt.Errorf("gemini suggestion has no rules")
	}
	return &s, nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini api key not configured")
	}

	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}

	var out geminiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("gemini: %s", msg)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}

// stripFences removes a markdown code fence the model sometimes wraps JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
