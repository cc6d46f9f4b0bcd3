package campaign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/ledger"
	"github.com/latticecrm/lattice/internal/pkg/distlock"
	"github.com/latticecrm/lattice/internal/segment"
)

// In-memory fakes covering the dispatcher's persistence surface. They keep
// the same guarded-transition semantics as the SQL implementations so the
// lifecycle tests exercise real state-machine behaviour.

type memRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
}

func newMemRepo() *memRepo {
	return &memRepo{campaigns: make(map[string]*domain.Campaign)}
}

func (r *memRepo) Create(ctx context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *memRepo) Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) List(ctx context.Context, ownerID string) ([]domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id string, from, to domain.CampaignStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != from {
		return ErrNotFound
	}
	c.Status = to
	if reason != "" {
		c.Stats.FailureReason = reason
	}
	return nil
}

func (r *memRepo) UpdateStats(ctx context.Context, id string, stats domain.CampaignStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.Stats = stats
	return nil
}

func (r *memRepo) Delete(ctx context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.campaigns, id)
	return nil
}

type memLedger struct {
	mu   sync.Mutex
	rows []*domain.CommunicationLog
}

func (m *memLedger) byMessageID(id string) *domain.CommunicationLog {
	for _, r := range m.rows {
		if r.MessageID == id {
			return r
		}
	}
	return nil
}

// insert enforces the same NOT NULL UNIQUE message_id constraint as the
// crm_communication_logs schema, so fake-backed tests catch colliding rows.
func (m *memLedger) insert(l *domain.CommunicationLog) error {
	if l.MessageID == "" {
		return fmt.Errorf("message_id is empty")
	}
	if m.byMessageID(l.MessageID) != nil {
		return fmt.Errorf("duplicate message_id %q", l.MessageID)
	}
	cp := *l
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memLedger) CreateQueued(ctx context.Context, l *domain.CommunicationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.Status = domain.LogQueued
	return m.insert(l)
}

func (m *memLedger) CreateFailed(ctx context.Context, l *domain.CommunicationLog, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.Status = domain.LogFailed
	l.FailureReason = reason
	return m.insert(l)
}

func (m *memLedger) MarkSent(ctx context.Context, messageID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.byMessageID(messageID)
	if r == nil || r.Status != domain.LogQueued {
		return ledger.ErrNotFound
	}
	r.Status = domain.LogSent
	r.SentAt = &at
	return nil
}

func (m *memLedger) MarkDelivered(ctx context.Context, messageID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.byMessageID(messageID)
	if r == nil || (r.Status != domain.LogQueued && r.Status != domain.LogSent) {
		return ledger.ErrNotFound
	}
	r.Status = domain.LogDelivered
	if r.SentAt == nil {
		r.SentAt = &at
	}
	r.DeliveredAt = &at
	return nil
}

func (m *memLedger) MarkFailed(ctx context.Context, messageID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.byMessageID(messageID)
	if r == nil || r.Status != domain.LogQueued {
		return ledger.ErrNotFound
	}
	r.Status = domain.LogFailed
	r.FailureReason = reason
	return nil
}

func (m *memLedger) ListForCampaign(ctx context.Context, campaignID string, limit, offset int) ([]domain.CommunicationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CommunicationLog
	for _, r := range m.rows {
		if r.CampaignID == campaignID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memLedger) CountsForCampaign(ctx context.Context, campaignID string) (*ledger.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &ledger.Counts{}
	for _, r := range m.rows {
		if r.CampaignID != campaignID {
			continue
		}
		if r.CountedAsSent() {
			c.Sent++
		}
		if r.CountedAsDelivered() {
			c.Delivered++
		}
		if r.OpenedAt != nil {
			c.Opened++
		}
		if r.ClickedAt != nil {
			c.Clicked++
		}
		if r.Status == domain.LogFailed {
			c.Failed++
		}
	}
	return c, nil
}

func (m *memLedger) DeleteForCampaign(ctx context.Context, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.CampaignID != campaignID {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

type stubSegments struct {
	seg *domain.Segment
	err error
}

func (s *stubSegments) Get(ctx context.Context, ownerID, id string) (*domain.Segment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.seg, nil
}

type stubCustomers struct {
	matches []domain.Customer
	err     error
}

func (s *stubCustomers) CountMatching(ctx context.Context, ownerID string, p *segment.Predicate) (int, error) {
	return len(s.matches), s.err
}

func (s *stubCustomers) FindMatching(ctx context.Context, ownerID string, p *segment.Predicate) ([]domain.Customer, error) {
	return s.matches, s.err
}

type stubAccounts struct {
	account *domain.EmailAccount
	err     error
}

func (s *stubAccounts) GetByOwner(ctx context.Context, ownerID string) (*domain.EmailAccount, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.account, nil
}

// fakeMailer records what it was asked to send.
type fakeMailer struct {
	mu       sync.Mutex
	provider domain.Provider
	sent     []domain.EmailMessage
	failFor  map[string]string // recipient -> rejection message
	onSend   func()
}

func (f *fakeMailer) Provider() domain.Provider { return f.provider }

func (f *fakeMailer) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSend != nil {
		f.onSend()
	}
	if reason, ok := f.failFor[msg.To]; ok {
		return &domain.SendResult{Success: false, Provider: f.provider, Message: reason}, nil
	}
	f.sent = append(f.sent, *msg)
	return &domain.SendResult{Success: true, Provider: f.provider}, nil
}

func (f *fakeMailer) sentMessages() []domain.EmailMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EmailMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

type noopLock struct{}

func (noopLock) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (noopLock) Release(ctx context.Context) error         { return nil }

type noopLockFactory struct{}

func (noopLockFactory) For(key string) distlock.DistLock { return noopLock{} }
