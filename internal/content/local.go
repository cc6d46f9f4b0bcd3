package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/latticecrm/lattice/internal/domain"
)

// LocalGenerator is the deterministic fallback. It never fails: subject and
// body are picked from canned pools varied by the clock, slanted toward
// whatever the rule tree says about the audience.
type LocalGenerator struct {
	// pick selects an index in [0,n). Defaults to a clock-seeded choice;
	// tests pin it.
	pick func(n int) int
}

// NewLocalGenerator creates the fallback generator.
func NewLocalGenerator() *LocalGenerator {
	return &LocalGenerator{
		pick: func(n int) int {
			now := time.Now()
			return (now.Second()*1000 + now.Nanosecond()/1e6) % n
		},
	}
}

var genericSubjects = []string{
	"Exclusive Deal for {name}!",
	"Save Big Today, {name}!",
	"{name}, Your Rewards Are Here!",
	"Personalized Deals Inside",
	"Unlock Your Discount, {name}",
}

var audienceSubjects = map[string][]string{
	"high-value customers": {
		"VIP Access Granted, {name}",
		"Premium Member Benefits Inside",
		"You've Earned Special Pricing, {name}",
	},
	"loyal customers": {
		"{name}, Your Loyalty Pays Off",
		"A Thank-You From Us, {name}",
	},
	"inactive customers": {
		"We Miss You, {name}!",
		"Come Back for Something Special, {name}",
	},
}

var bodies = []string{
	`Hey {name}!

Something special just landed and we couldn't wait to share it with you.

What's waiting:
- Handpicked items matching your interests
- Extra savings on your favorite categories
- Free delivery included

Ready to explore?

Cheers,
The Team`,

	`Hello {name}!

Great deals don't wait, and neither should you. We've put together an offer just for you.

Today's highlights:
- Member-only pricing
- No hidden fees
- Easy returns within 60 days

You've spent {total_spent} with us so far. Let's make the next order count.

Best,
Your Personal Shopper`,

	`Dear {name},

Quality meets affordability in our latest collection. With {orders_count} orders behind you, you know what good looks like.

Premium selection:
- Top-rated products only
- Quality guarantee included
- Member-exclusive prices

With appreciation,
The Curation Team`,
}

// CampaignContent assembles copy from the pools. Never returns an error.
func (g *LocalGenerator) CampaignContent(ctx context.Context, req ContentRequest) (string, error) {
	aud := analyzeRules(req.Rules)

	subjects := genericSubjects
	if pool, ok := audienceSubjects[aud.description]; ok {
		subjects = pool
	}
	subject := subjects[g.pick(len(subjects))]
	body := bodies[g.pick(len(bodies))]

	return fmt.Sprintf("Subject: %s\n\n%s", subject, body), nil
}

// SuggestSegment builds a rule tree from prompt keywords. It mirrors the
// audience classes CampaignContent understands, defaulting to a high-value
// segment.
func (g *LocalGenerator) SuggestSegment(ctx context.Context, prompt string) (*SegmentSuggestion, error) {
	low := strings.ToLower(prompt)

	switch {
	case strings.Contains(low, "inactive") || strings.Contains(low, "win back") ||
		strings.Contains(low, "win-back") || strings.Contains(low, "lapsed"):
		return &SegmentSuggestion{
			Title:       "Lapsed Customers",
			Description: "Customers with no purchase in the last 90 days",
			Rules: domain.RuleTree{
				Combinator: domain.CombinatorAnd,
				Rules: []domain.RuleNode{
					{Field: "last_purchase", Operator: "<", Value: float64(90)},
				},
			},
			Tags: []string{"win-back", "inactive"},
		}, nil

	case strings.Contains(low, "loyal") || strings.Contains(low, "repeat") ||
		strings.Contains(low, "frequent"):
		return &SegmentSuggestion{
			Title:       "Loyal Customers",
			Description: "Customers with more than 3 orders",
			Rules: domain.RuleTree{
				Combinator: domain.CombinatorAnd,
				Rules: []domain.RuleNode{
					{Field: "order_count", Operator: ">", Value: float64(3)},
				},
			},
			Tags: []string{"loyal", "frequent-buyer"},
		}, nil

	default:
		return &SegmentSuggestion{
			Title:       "High Value Customers",
			Description: "Customers with high purchase frequency and spending",
			Rules: domain.RuleTree{
				Combinator: domain.CombinatorAnd,
				Rules: []domain.RuleNode{
					{Field: "total_spent", Operator: ">", Value: float64(1000)},
					{Field: "order_count", Operator: ">", Value: float64(5)},
				},
			},
			Tags: []string{"high-value", "loyal", "frequent-buyer"},
		}, nil
	}
}
