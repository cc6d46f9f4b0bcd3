package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/latticecrm/lattice/internal/config"
	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/gateway"
	"github.com/latticecrm/lattice/internal/pkg/logger"
	"github.com/latticecrm/lattice/internal/segment"
)

// Dispatcher runs campaign sends in the background, one goroutine per
// campaign. Each run holds a distributed lock so a campaign is dispatched
// by exactly one process, writes every recipient outcome to the ledger,
// and finishes by moving the campaign to completed or failed.
type Dispatcher struct {
	repo      Repository
	segments  SegmentSource
	customers CustomerSource
	ledger    Ledger
	locks     LockFactory
	newMailer MailerFactory
	compiler  *segment.Compiler
	cfg       config.DispatchConfig

	log   *logger.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running map[string]*dispatchHandle
	wg      sync.WaitGroup
}

type dispatchHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(repo Repository, segments SegmentSource, customers CustomerSource,
	lg Ledger, locks LockFactory, newMailer MailerFactory,
	compiler *segment.Compiler, cfg config.DispatchConfig) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		segments:  segments,
		customers: customers,
		ledger:    lg,
		locks:     locks,
		newMailer: newMailer,
		compiler:  compiler,
		cfg:       cfg,
		log:       logger.With("dispatcher"),
		now:       time.Now,
		sleep:     sleepCtx,
		running:   make(map[string]*dispatchHandle),
	}
}

// Dispatch starts a background run for the campaign. It returns immediately;
// the run is bounded by the campaign wall-clock timeout and can be stopped
// early through Cancel.
func (d *Dispatcher) Dispatch(c *domain.Campaign, account *domain.EmailAccount) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.CampaignTimeout())
	h := &dispatchHandle{cancel: cancel, done: make(chan struct{})}

	d.mu.Lock()
	if _, exists := d.running[c.ID]; exists {
		d.mu.Unlock()
		cancel()
		d.log.Warn("dispatch already running", "campaign_id", c.ID)
		return
	}
	d.running[c.ID] = h
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.running, c.ID)
			d.mu.Unlock()
			cancel()
			close(h.done)
			d.wg.Done()
		}()
		d.run(ctx, c, account)
	}()
}

// Cancel stops an in-flight dispatch and waits for it to wind down. It
// returns false when no run is active for the campaign.
func (d *Dispatcher) Cancel(ctx context.Context, campaignID string) bool {
	d.mu.Lock()
	h, ok := d.running[campaignID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	h.cancel()
	select {
	case <-h.done:
	case <-ctx.Done():
	}
	return true
}

// Wait blocks until all in-flight dispatches finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown cancels every in-flight dispatch and waits for them to wind
// down, bounded by ctx. Cancelled runs mark their remaining recipients
// failed before returning.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	for _, h := range d.running {
		h.cancel()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) run(ctx context.Context, c *domain.Campaign, account *domain.EmailAccount) {
	lock := d.locks.For("dispatch:" + c.ID)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		d.fail(c, domain.CampaignDraft, fmt.Sprintf("dispatch lock: %v", err))
		return
	}
	if !ok {
		d.log.Warn("dispatch lock held elsewhere, skipping", "campaign_id", c.ID)
		return
	}
	defer lock.Release(context.Background())

	mailer, err := d.newMailer(account)
	if err != nil {
		d.fail(c, domain.CampaignDraft, fmt.Sprintf("email gateway: %v", err))
		return
	}

	recipients, err := d.resolveAudience(ctx, c)
	if err != nil {
		d.fail(c, domain.CampaignDraft, err.Error())
		return
	}

	if err := d.repo.UpdateStatus(ctx, c.ID, domain.CampaignDraft, domain.CampaignProcessing, ""); err != nil {
		d.log.Error("transition to processing failed", "campaign_id", c.ID, "error", err.Error())
		return
	}
	c.Status = domain.CampaignProcessing
	d.log.Info("dispatch started",
		"campaign_id", c.ID, "recipients", len(recipients), "provider", string(mailer.Provider()))

	for i := range recipients {
		if err := ctx.Err(); err != nil {
			d.abort(c, recipients[i:], err)
			return
		}
		d.sendOne(ctx, c, account, mailer, &recipients[i])
		if i < len(recipients)-1 {
			d.sleep(ctx, d.cfg.SendDelay())
		}
	}

	d.finalize(c, domain.CampaignCompleted, "")
}

// resolveAudience re-runs the segment predicate and overwrites the snapshot
// recipient count. The audience may have drifted since creation; the stored
// total always reflects what dispatch actually attempted.
func (d *Dispatcher) resolveAudience(ctx context.Context, c *domain.Campaign) ([]domain.Customer, error) {
	seg, err := d.segments.Get(ctx, c.OwnerID, c.SegmentID)
	if err != nil {
		return nil, fmt.Errorf("load segment: %v", err)
	}
	pred, err := d.compiler.Compile(seg.Rules, 2)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %v", err)
	}
	recipients, err := d.customers.FindMatching(ctx, c.OwnerID, pred)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %v", err)
	}

	if len(recipients) != c.Stats.TotalRecipients {
		d.log.Info("audience drifted since creation",
			"campaign_id", c.ID, "was", c.Stats.TotalRecipients, "now", len(recipients))
	}
	c.Stats.TotalRecipients = len(recipients)
	if err := d.repo.UpdateStats(ctx, c.ID, c.Stats); err != nil {
		return nil, fmt.Errorf("snapshot recipients: %v", err)
	}
	return recipients, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, c *domain.Campaign, account *domain.EmailAccount, mailer Mailer, cust *domain.Customer) {
	vars := cust.TemplateVars()
	subject := Personalize(c.Template.Subject, vars)

	if !domain.ValidEmail(cust.Email) {
		// Even unsendable rows carry a message ID; the ledger keys every
		// row by it and the column is unique.
		row := &domain.CommunicationLog{
			CampaignID: c.ID, CustomerID: cust.ID, MessageID: d.messageID(cust.ID),
			Recipient: cust.Email, Subject: subject,
		}
		if err := d.ledger.CreateFailed(ctx, row, "invalid email address"); err != nil {
			d.log.Error("failed log write", "campaign_id", c.ID, "error", err.Error())
		}
		return
	}

	msgID := d.messageID(cust.ID)
	row := &domain.CommunicationLog{
		CampaignID: c.ID, CustomerID: cust.ID, MessageID: msgID,
		Recipient: cust.Email, Subject: subject,
	}
	if err := d.ledger.CreateQueued(ctx, row); err != nil {
		d.log.Error("queued log write", "campaign_id", c.ID, "error", err.Error())
		return
	}

	msg := &domain.EmailMessage{
		To:        cust.Email,
		ToName:    cust.Name,
		From:      account.SenderEmail,
		FromName:  account.SenderName,
		Subject:   subject,
		HTML:      Personalize(c.Template.Body, vars),
		MessageID: msgID,
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout())
	res, err := mailer.Send(sendCtx, msg)
	cancel()

	// Outcome writes run on a fresh context: the dispatch context may have
	// died mid-send and the row must not be left queued.
	outCtx, cancelOut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelOut()

	switch {
	case err != nil:
		d.ledger.MarkFailed(outCtx, msgID, err.Error())
	case !res.Success:
		reason := res.Message
		if reason == "" {
			reason = fmt.Sprintf("provider rejected (status %d)", res.StatusCode)
		}
		d.ledger.MarkFailed(outCtx, msgID, reason)
	case gateway.ConfirmsDelivery(mailer.Provider()):
		d.ledger.MarkDelivered(outCtx, msgID, d.now())
	default:
		d.ledger.MarkSent(outCtx, msgID, d.now())
	}
}

// abort handles the campaign deadline or an explicit cancellation: every
// remaining recipient gets a failed log row so the ledger accounts for the
// whole audience. Once processing has begun, failure is per-recipient: a
// timed-out campaign still ends completed, with the unsent remainder
// recorded as failed rows. Only an explicit cancel fails the campaign.
func (d *Dispatcher) abort(c *domain.Campaign, remaining []domain.Customer, cause error) {
	timedOut := errors.Is(cause, context.DeadlineExceeded)
	reason := "campaign cancelled"
	if timedOut {
		reason = "campaign timeout"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i := range remaining {
		cust := &remaining[i]
		row := &domain.CommunicationLog{
			CampaignID: c.ID, CustomerID: cust.ID, MessageID: d.messageID(cust.ID),
			Recipient: cust.Email,
			Subject:   Personalize(c.Template.Subject, cust.TemplateVars()),
		}
		if err := d.ledger.CreateFailed(ctx, row, reason); err != nil {
			d.log.Error("failed log write", "campaign_id", c.ID, "error", err.Error())
		}
	}
	if timedOut {
		d.finalize(c, domain.CampaignCompleted, reason)
		return
	}
	d.finalize(c, domain.CampaignFailed, reason)
}

func (d *Dispatcher) fail(c *domain.Campaign, from domain.CampaignStatus, reason string) {
	d.log.Error("dispatch failed before sending", "campaign_id", c.ID, "reason", reason)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.Stats.FailureReason = reason
	if err := d.repo.UpdateStats(ctx, c.ID, c.Stats); err != nil {
		d.log.Error("stats update failed", "campaign_id", c.ID, "error", err.Error())
	}
	if err := d.repo.UpdateStatus(ctx, c.ID, from, domain.CampaignFailed, reason); err != nil {
		d.log.Error("transition to failed", "campaign_id", c.ID, "error", err.Error())
	}
}

// finalize refreshes stats from the ledger and moves the campaign to its
// terminal state. Runs on a fresh context: the dispatch context may already
// be expired and the final writes must still land.
func (d *Dispatcher) finalize(c *domain.Campaign, to domain.CampaignStatus, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	counts, err := d.ledger.CountsForCampaign(ctx, c.ID)
	if err != nil {
		d.log.Error("final counts", "campaign_id", c.ID, "error", err.Error())
	} else {
		c.Stats.Sent = counts.Sent
		c.Stats.Delivered = counts.Delivered
		c.Stats.Opened = counts.Opened
		c.Stats.Clicked = counts.Clicked
		c.Stats.Failed = counts.Failed
		c.Stats.FailureReason = reason
		c.Stats.RecomputeRates()
		if err := d.repo.UpdateStats(ctx, c.ID, c.Stats); err != nil {
			d.log.Error("final stats update", "campaign_id", c.ID, "error", err.Error())
		}
	}

	if err := d.repo.UpdateStatus(ctx, c.ID, domain.CampaignProcessing, to, reason); err != nil {
		d.log.Error("final transition", "campaign_id", c.ID, "to", string(to), "error", err.Error())
		return
	}
	c.Status = to
	d.log.Info("dispatch finished",
		"campaign_id", c.ID, "status", string(to),
		"delivered", c.Stats.Delivered, "failed", c.Stats.Failed)
}

func (d *Dispatcher) messageID(customerID string) string {
	return fmt.Sprintf("msg_%d_%s_%s", d.now().UnixNano(), uuid.New().String()[:8], customerID)
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
