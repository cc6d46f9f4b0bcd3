package domain

import "time"

// LogStatus enumerates the per-recipient delivery states. Statuses are
// ordered; a log row only ever moves forward through the chain
// queued -> sent -> delivered -> opened -> clicked. failed is terminal and
// sits outside the chain.
type LogStatus string

const (
	LogQueued    LogStatus = "queued"
	LogSent      LogStatus = "sent"
	LogDelivered LogStatus = "delivered"
	LogOpened    LogStatus = "opened"
	LogClicked   LogStatus = "clicked"
	LogFailed    LogStatus = "failed"
)

// rank orders the forward chain. failed ranks highest so nothing can
// overwrite it.
func (s LogStatus) rank() int {
	switch s {
	case LogQueued:
		return 0
	case LogSent:
		return 1
	case LogDelivered:
		return 2
	case LogOpened:
		return 3
	case LogClicked:
		return 4
	case LogFailed:
		return 5
	default:
		return -1
	}
}

// AtLeast reports whether the status has reached stage s2 in the chain.
func (s LogStatus) AtLeast(s2 LogStatus) bool { return s.rank() >= s2.rank() }

// CommunicationLog is one ledger row: a single message to a single customer
// within a campaign. MessageID is the globally unique tracking handle embedded
// in the message body.
type CommunicationLog struct {
	ID            string                 `json:"id" db:"id"`
	CampaignID    string                 `json:"campaign_id" db:"campaign_id"`
	CustomerID    string                 `json:"customer_id" db:"customer_id"`
	MessageID     string                 `json:"message_id" db:"message_id"`
	Recipient     string                 `json:"recipient" db:"recipient"`
	Subject       string                 `json:"subject" db:"subject"`
	Status        LogStatus              `json:"status" db:"status"`
	SentAt        *time.Time             `json:"sent_at" db:"sent_at"`
	DeliveredAt   *time.Time             `json:"delivered_at" db:"delivered_at"`
	OpenedAt      *time.Time             `json:"opened_at" db:"opened_at"`
	ClickedAt     *time.Time             `json:"clicked_at" db:"clicked_at"`
	FailureReason string                 `json:"failure_reason,omitempty" db:"failure_reason"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at" db:"updated_at"`
}

// ApplyOpen records an open at time now. Idempotent: a second open changes
// nothing, and an open never downgrades a clicked row. Returns true if the
// row changed.
func (l *CommunicationLog) ApplyOpen(now time.Time) bool {
	if l.Status == LogFailed {
		return false
	}
	changed := false
	if l.OpenedAt == nil {
		t := now
		l.OpenedAt = &t
		changed = true
	}
	if !l.Status.AtLeast(LogOpened) {
		l.Status = LogOpened
		changed = true
	}
	return changed
}

// ApplyClick records a click at time now. A click implies an open, so an
// unset OpenedAt is backfilled with the same instant. Idempotent.
func (l *CommunicationLog) ApplyClick(now time.Time) bool {
	if l.Status == LogFailed {
		return false
	}
	changed := false
	if l.OpenedAt == nil {
		t := now
		l.OpenedAt = &t
		changed = true
	}
	if l.ClickedAt == nil {
		t := now
		l.ClickedAt = &t
		changed = true
	}
	if !l.Status.AtLeast(LogClicked) {
		l.Status = LogClicked
		changed = true
	}
	return changed
}

// ApplyReceipt records a provider delivery receipt. Only the delivered stage
// is accepted from receipts; rows already past delivered keep their status
// but still gain the DeliveredAt timestamp if missing.
func (l *CommunicationLog) ApplyReceipt(status LogStatus, at time.Time) bool {
	if l.Status == LogFailed || status != LogDelivered {
		return false
	}
	changed := false
	if l.DeliveredAt == nil {
		t := at
		l.DeliveredAt = &t
		changed = true
	}
	if !l.Status.AtLeast(LogDelivered) {
		l.Status = LogDelivered
		changed = true
	}
	return changed
}

// CountedAsSent reports whether the row counts toward the campaign's sent
// total. Timestamps win over status so receipt-only rows still count.
func (l *CommunicationLog) CountedAsSent() bool {
	return l.SentAt != nil || l.Status.AtLeast(LogSent) && l.Status != LogFailed
}

// CountedAsDelivered reports whether the row counts toward delivered.
func (l *CommunicationLog) CountedAsDelivered() bool {
	return l.DeliveredAt != nil || l.Status.AtLeast(LogDelivered) && l.Status != LogFailed
}
