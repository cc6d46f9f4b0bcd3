// Package api exposes the CRM over HTTP: segments, customers, campaigns,
// email settings, and content generation. Tracking callbacks live in
// internal/tracking and are mounted beside this router.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/latticecrm/lattice/internal/campaign"
	"github.com/latticecrm/lattice/internal/content"
	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/httputil"
	"github.com/latticecrm/lattice/internal/pkg/logger"
	"github.com/latticecrm/lattice/internal/segment"
)

// SegmentStore is the segment persistence surface the handlers use.
type SegmentStore interface {
	Create(ctx context.Context, seg *domain.Segment) error
	Get(ctx context.Context, ownerID, id string) (*domain.Segment, error)
	List(ctx context.Context, ownerID string) ([]domain.Segment, error)
	Update(ctx context.Context, seg *domain.Segment) error
	SoftDelete(ctx context.Context, ownerID, id string) error
}

// Previewer estimates and profiles an audience without saving anything.
type Previewer interface {
	Estimate(ctx context.Context, ownerID string, tree domain.RuleTree) (int, error)
	Preview(ctx context.Context, ownerID string, tree domain.RuleTree) (*segment.PreviewResult, error)
}

// CustomerStore is the customer persistence surface the handlers use.
type CustomerStore interface {
	Create(ctx context.Context, c *domain.Customer) (string, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Customer, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]domain.Customer, error)
	SoftDelete(ctx context.Context, ownerID, id string) error
}

// CampaignService drives the campaign lifecycle.
type CampaignService interface {
	Create(ctx context.Context, ownerID string, in campaign.CreateInput) (*domain.Campaign, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error)
	List(ctx context.Context, ownerID string) ([]domain.Campaign, error)
	Logs(ctx context.Context, ownerID, id string, limit, offset int) ([]domain.CommunicationLog, error)
	Delete(ctx context.Context, ownerID, id string) error
	RefreshStats(ctx context.Context, ownerID, id string) (*domain.Campaign, error)
}

// AccountStore holds per-owner email settings.
type AccountStore interface {
	GetByOwner(ctx context.Context, ownerID string) (*domain.EmailAccount, error)
	Upsert(ctx context.Context, a *domain.EmailAccount) error
	MarkTested(ctx context.Context, ownerID string, at time.Time) error
}

// Handlers carries the wired dependencies for every endpoint.
type Handlers struct {
	segments  SegmentStore
	previewer Previewer
	customers CustomerStore
	campaigns CampaignService
	accounts  AccountStore
	content   content.Generator
	newMailer campaign.MailerFactory

	log *logger.Logger
}

// NewHandlers wires the handler set.
func NewHandlers(segments SegmentStore, previewer Previewer, customers CustomerStore,
	campaigns CampaignService, accounts AccountStore, gen content.Generator,
	newMailer campaign.MailerFactory) *Handlers {
	return &Handlers{
		segments:  segments,
		previewer: previewer,
		customers: customers,
		campaigns: campaigns,
		accounts:  accounts,
		content:   gen,
		newMailer: newMailer,
		log:       logger.With("api"),
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
