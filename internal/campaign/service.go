// Package campaign owns the campaign lifecycle: creation against a live
// segment, background dispatch through the email gateway, and stats derived
// from the communication ledger.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/logger"
	"github.com/latticecrm/lattice/internal/segment"
)

// CreateInput is the payload for creating a campaign.
type CreateInput struct {
	Name      string `json:"name"`
	SegmentID string `json:"segment_id"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Service coordinates campaign operations. All reads and writes are scoped
// to the owner passed in; a campaign is never visible across owners.
type Service struct {
	repo       Repository
	segments   SegmentSource
	customers  CustomerSource
	ledger     Ledger
	accounts   AccountSource
	compiler   *segment.Compiler
	dispatcher *Dispatcher

	log *logger.Logger
	now func() time.Time
}

// NewService wires the campaign service.
func NewService(repo Repository, segments SegmentSource, customers CustomerSource,
	lg Ledger, accounts AccountSource, compiler *segment.Compiler, dispatcher *Dispatcher) *Service {
	return &Service{
		repo:       repo,
		segments:   segments,
		customers:  customers,
		ledger:     lg,
		accounts:   accounts,
		compiler:   compiler,
		dispatcher: dispatcher,
		log:        logger.With("campaign"),
		now:        time.Now,
	}
}

// Create validates the request, persists a draft with a snapshot of the
// audience size, and starts background dispatch. The returned campaign is
// the draft; dispatch progress is visible through Get and RefreshStats.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*domain.Campaign, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrNameRequired
	}
	if strings.TrimSpace(in.Subject) == "" || strings.TrimSpace(in.Body) == "" {
		return nil, ErrTemplateInvalid
	}

	account, err := s.accounts.GetByOwner(ctx, ownerID)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return nil, ErrConfigurationRequired
	case err != nil:
		return nil, fmt.Errorf("load email account: %w", err)
	case account.ResolveProvider() == "":
		return nil, ErrConfigurationRequired
	}

	seg, err := s.segments.Get(ctx, ownerID, in.SegmentID)
	if err != nil {
		if errors.Is(err, segment.ErrNotFound) {
			return nil, ErrSegmentNotFound
		}
		return nil, fmt.Errorf("load segment: %w", err)
	}

	pred, err := s.compiler.Compile(seg.Rules, 2)
	if err != nil {
		return nil, err
	}
	count, err := s.customers.CountMatching(ctx, ownerID, pred)
	if err != nil {
		return nil, fmt.Errorf("count audience: %w", err)
	}
	if count == 0 {
		return nil, ErrEmptyAudience
	}

	c := &domain.Campaign{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		SegmentID: seg.ID,
		Name:      in.Name,
		Template: domain.Template{
			Subject:   in.Subject,
			Body:      in.Body,
			Variables: ExtractVariables(in.Subject, in.Body),
		},
		Status:    domain.CampaignDraft,
		Stats:     domain.CampaignStats{TotalRecipients: count},
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	s.log.Info("campaign created, starting dispatch",
		"campaign_id", c.ID, "segment_id", seg.ID, "recipients", count)
	s.dispatcher.Dispatch(c, account)
	return c, nil
}

// Get returns one owned campaign.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, ownerID, id)
}

// List returns all campaigns for the owner, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]domain.Campaign, error) {
	return s.repo.List(ctx, ownerID)
}

// Logs returns the per-recipient ledger rows for an owned campaign.
func (s *Service) Logs(ctx context.Context, ownerID, id string, limit, offset int) ([]domain.CommunicationLog, error) {
	if _, err := s.repo.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.ledger.ListForCampaign(ctx, id, limit, offset)
}

// Delete removes a campaign and its logs. A campaign still dispatching is
// cancelled first; the dispatcher stops before its next log write.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	c, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if c.Status == domain.CampaignProcessing {
		s.dispatcher.Cancel(ctx, id)
	}
	if err := s.ledger.DeleteForCampaign(ctx, id); err != nil {
		return fmt.Errorf("delete campaign logs: %w", err)
	}
	return s.repo.Delete(ctx, ownerID, id)
}

// RefreshStats recomputes the campaign's counters from the ledger. The
// ledger is the source of truth; the stats column is a cache of it.
func (s *Service) RefreshStats(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.ledger.CountsForCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count logs: %w", err)
	}

	c.Stats.Sent = counts.Sent
	c.Stats.Delivered = counts.Delivered
	c.Stats.Opened = counts.Opened
	c.Stats.Clicked = counts.Clicked
	c.Stats.Failed = counts.Failed
	c.Stats.RecomputeRates()

	if err := s.repo.UpdateStats(ctx, id, c.Stats); err != nil {
		return nil, fmt.Errorf("update stats: %w", err)
	}
	return c, nil
}
