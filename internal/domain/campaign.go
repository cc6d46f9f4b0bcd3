package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
// Transitions are strictly forward: draft -> processing -> completed|failed.
type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "draft"
	CampaignProcessing CampaignStatus = "processing"
	CampaignCompleted  CampaignStatus = "completed"
	CampaignFailed     CampaignStatus = "failed"
)

// CanTransition reports whether moving from the current status to next is a
// legal forward transition.
func (s CampaignStatus) CanTransition(next CampaignStatus) bool {
	switch s {
	case CampaignDraft:
		return next == CampaignProcessing || next == CampaignFailed
	case CampaignProcessing:
		return next == CampaignCompleted || next == CampaignFailed
	default:
		return false
	}
}

// IsTerminal returns true if the campaign is in a final state.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignCompleted || s == CampaignFailed
}

// Template is the message content of a campaign. Variables holds the
// {placeholder} names extracted from subject and body at creation time.
type Template struct {
	Subject   string   `json:"subject" db:"subject"`
	Body      string   `json:"body" db:"body"`
	Variables []string `json:"variables" db:"variables"`
}

// Campaign is a bulk send against the customers matching a segment.
// Stats.TotalRecipients is fixed at creation time as the actual match count
// of the segment predicate at that instant; dispatch re-resolves the
// predicate and overwrites it with the fresh set size so the stored number
// always reflects what was actually attempted.
type Campaign struct {
	ID        string         `json:"id" db:"id"`
	OwnerID   string         `json:"owner_id" db:"owner_id"`
	SegmentID string         `json:"segment_id" db:"segment_id"`
	Name      string         `json:"name" db:"name"`
	Template  Template       `json:"template"`
	Status    CampaignStatus `json:"status" db:"status"`
	Stats     CampaignStats  `json:"stats"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// CampaignStats is the aggregate block stored with a campaign. Counts are
// derived from the communication log; rates are percentages.
type CampaignStats struct {
	TotalRecipients int     `json:"total_recipients" db:"total_recipients"`
	Sent            int     `json:"sent" db:"sent"`
	Delivered       int     `json:"delivered" db:"delivered"`
	Opened          int     `json:"opened" db:"opened"`
	Clicked         int     `json:"clicked" db:"clicked"`
	Failed          int     `json:"failed" db:"failed"`
	DeliveryRate    float64 `json:"delivery_rate" db:"delivery_rate"`
	OpenRate        float64 `json:"open_rate" db:"open_rate"`
	ClickRate       float64 `json:"click_rate" db:"click_rate"`
	FailureReason   string  `json:"failure_reason,omitempty" db:"failure_reason"`
}

// RecomputeRates fills the derived rate fields from the counts.
// delivery_rate is relative to total recipients, open_rate to delivered,
// click_rate to opened.
func (s *CampaignStats) RecomputeRates() {
	s.DeliveryRate = pct(s.Delivered, s.TotalRecipients)
	s.OpenRate = pct(s.Opened, s.Delivered)
	s.ClickRate = pct(s.Clicked, s.Opened)
}

func pct(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
