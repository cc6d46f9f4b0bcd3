// Package content generates campaign copy and segment rule suggestions.
// The remote generator calls Gemini; a deterministic local generator covers
// the unconfigured and failure cases so the endpoints always answer.
package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/latticecrm/lattice/internal/domain"
)

// ContentRequest describes the campaign a template is wanted for.
type ContentRequest struct {
	CampaignName       string          `json:"campaign_name"`
	SegmentDescription string          `json:"segment_description"`
	Rules              domain.RuleTree `json:"rules"`
}

// SegmentSuggestion is a rule tree proposed from a natural-language prompt.
type SegmentSuggestion struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Rules       domain.RuleTree `json:"rules"`
	Tags        []string        `json:"tags"`
}

// Generator produces campaign copy and segment suggestions. CampaignContent
// returns "Subject: <line>\n\n<body>" with at least one {var} placeholder.
type Generator interface {
	CampaignContent(ctx context.Context, req ContentRequest) (string, error)
	SuggestSegment(ctx context.Context, prompt string) (*SegmentSuggestion, error)
}

// ParseTemplate splits generated content into subject and body.
func ParseTemplate(content string) (subject, body string, err error) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "Subject:") {
		return "", "", fmt.Errorf("content has no subject line")
	}
	rest := strings.TrimPrefix(content, "Subject:")
	parts := strings.SplitN(rest, "\n", 2)
	subject = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		body = strings.TrimSpace(parts[1])
	}
	if subject == "" || body == "" {
		return "", "", fmt.Errorf("content missing subject or body")
	}
	return subject, body, nil
}

// audience is what the rule tree says about who the campaign targets.
type audience struct {
	description string
	offer       string
	urgency     string
}

// analyzeRules walks the tree and classifies the audience the way the
// campaign composer describes it: big spenders get premium framing, repeat
// buyers get loyalty framing, lapsed buyers get a win-back push.
func analyzeRules(tree domain.RuleTree) audience {
	a := audience{description: "general customers", offer: "discount", urgency: "moderate"}
	walkRules(tree.Rules, &a)
	return a
}

func walkRules(rules []domain.RuleNode, a *audience) {
	for i := range rules {
		rule := &rules[i]
		if len(rule.Rules) > 0 {
			walkRules(rule.Rules, a)
		}
		if !rule.IsLeaf() {
			continue
		}
		value, _ := toFloat(rule.Value)
		greater := rule.Operator == ">" || rule.Operator == ">="
		switch rule.Field {
		case "total_spent":
			if greater && value > 500 {
				a.description = "high-value customers"
				a.offer = "premium benefits"
			}
		case "order_count":
			if greater && value > 3 {
				a.description = "loyal customers"
				a.offer = "loyalty rewards"
			}
		case "last_purchase":
			// "< N days ago" selects customers who have not bought lately
			if rule.Operator == "<" || rule.Operator == "<=" {
				a.description = "inactive customers"
				a.offer = "win-back offer"
				a.urgency = "high"
			}
		}
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
