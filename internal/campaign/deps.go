package campaign

import (
	"context"
	"time"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/ledger"
	"github.com/latticecrm/lattice/internal/pkg/distlock"
	"github.com/latticecrm/lattice/internal/segment"
)

// Repository persists campaign rows.
type Repository interface {
	Create(ctx context.Context, c *domain.Campaign) error
	Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error)
	List(ctx context.Context, ownerID string) ([]domain.Campaign, error)
	// UpdateStatus performs a guarded transition and returns ErrNotFound
	// when the row is not in the expected state.
	UpdateStatus(ctx context.Context, id string, from, to domain.CampaignStatus, reason string) error
	UpdateStats(ctx context.Context, id string, stats domain.CampaignStats) error
	Delete(ctx context.Context, ownerID, id string) error
}

// SegmentSource loads the segment a campaign targets.
type SegmentSource interface {
	Get(ctx context.Context, ownerID, id string) (*domain.Segment, error)
}

// CustomerSource resolves a compiled predicate against the customer table.
type CustomerSource interface {
	CountMatching(ctx context.Context, ownerID string, p *segment.Predicate) (int, error)
	FindMatching(ctx context.Context, ownerID string, p *segment.Predicate) ([]domain.Customer, error)
}

// Ledger records per-recipient delivery state.
type Ledger interface {
	CreateQueued(ctx context.Context, l *domain.CommunicationLog) error
	CreateFailed(ctx context.Context, l *domain.CommunicationLog, reason string) error
	MarkSent(ctx context.Context, messageID string, at time.Time) error
	MarkDelivered(ctx context.Context, messageID string, at time.Time) error
	MarkFailed(ctx context.Context, messageID, reason string) error
	ListForCampaign(ctx context.Context, campaignID string, limit, offset int) ([]domain.CommunicationLog, error)
	CountsForCampaign(ctx context.Context, campaignID string) (*ledger.Counts, error)
	DeleteForCampaign(ctx context.Context, campaignID string) error
}

// AccountSource loads the owner's email sending configuration.
type AccountSource interface {
	GetByOwner(ctx context.Context, ownerID string) (*domain.EmailAccount, error)
}

// Mailer is the slice of the gateway the dispatcher uses.
type Mailer interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
	Provider() domain.Provider
}

// MailerFactory builds a Mailer for an account. Production wires this to
// gateway.New; tests inject fakes.
type MailerFactory func(account *domain.EmailAccount) (Mailer, error)

// LockFactory mints per-campaign dispatch locks.
type LockFactory interface {
	For(key string) distlock.DistLock
}
