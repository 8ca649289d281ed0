// Package dispatch emails an RFP to selected vendors and records each
// engagement.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/rfpd/internal/events"
	"github.com/kalambet/rfpd/internal/mailer"
	"github.com/kalambet/rfpd/internal/metrics"
	"github.com/kalambet/rfpd/internal/storage"
	"github.com/kalambet/rfpd/internal/viewcache"
)

// maxConcurrentSends bounds outbound calls to the mail provider.
const maxConcurrentSends = 4

// SendFailure is the error reported for a vendor whose email was not sent.
const SendFailure = "Failed to send email"

var (
	ErrNoVendors      = errors.New("at least one vendor must be selected")
	ErrRFPNotFound    = errors.New("RFP not found")
	ErrVendorNotFound = errors.New("one or more vendors not found")
)

// Sender delivers one email and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) (string, error)
}

// Result is the outcome for one vendor.
type Result struct {
	VendorID string `json:"vendorId"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// SentEvent is published after a dispatch that reached at least one vendor.
type SentEvent struct {
	RFPID   string   `json:"rfpId"`
	Vendors []string `json:"vendorIds"`
	SentAt  string   `json:"sentAt"`
}

// Dispatcher sends RFP emails.
type Dispatcher struct {
	store     *storage.Store
	sender    Sender
	from      string
	replyTo   string
	publisher events.Publisher
	views     viewcache.Invalidator
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithPublisher(p events.Publisher) Option { return func(d *Dispatcher) { d.publisher = p } }

func WithViews(v viewcache.Invalidator) Option { return func(d *Dispatcher) { d.views = v } }

// NewDispatcher returns a Dispatcher sending as from, with replies directed
// to replyTo when set.
func NewDispatcher(store *storage.Store, sender Sender, from, replyTo string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		sender:    sender,
		from:      from,
		replyTo:   replyTo,
		publisher: events.Nop{},
		views:     viewcache.Nop{},
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Send emails the RFP to every vendor in vendorIDs. Duplicate ids are sent
// once. A failed send is reported in its Result and never aborts the batch.
// The RFP moves to sent when at least one email went out.
func (d *Dispatcher) Send(ctx context.Context, rfpID string, vendorIDs []string) ([]Result, error) {
	ids := dedupe(vendorIDs)
	if len(ids) == 0 {
		return nil, ErrNoVendors
	}

	rfp, err := d.store.GetRFP(rfpID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRFPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading rfp: %w", err)
	}

	vendors, err := d.store.GetVendorsByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("loading vendors: %w", err)
	}
	if len(vendors) != len(ids) {
		return nil, ErrVendorNotFound
	}

	email, err := Render(rfp)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(vendors))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSends)
	for i, v := range vendors {
		g.Go(func() error {
			results[i] = d.sendOne(gCtx, rfp.ID, v, email)
			return nil
		})
	}
	_ = g.Wait()

	var sent []string
	for _, r := range results {
		if r.Success {
			sent = append(sent, r.VendorID)
		}
	}

	if len(sent) > 0 {
		if _, err := d.store.AdvanceRFPStatus(rfp.ID, storage.RFPStatusSent); err != nil {
			return results, fmt.Errorf("marking rfp sent: %w", err)
		}
		events.Emit(ctx, d.publisher, events.SubjectRFPSent, SentEvent{
			RFPID:   rfp.ID,
			Vendors: sent,
			SentAt:  time.Now().UTC().Format(time.RFC3339),
		})
	}
	d.views.Invalidate(viewcache.RFPViews(rfp.ID)...)

	d.logger.Info("dispatched rfp", "rfp_id", rfp.ID, "requested", len(vendors), "sent", len(sent))
	return results, nil
}

// sendOne delivers to one vendor and records the engagement on success.
// Errors are logged and folded into the Result.
func (d *Dispatcher) sendOne(ctx context.Context, rfpID string, v storage.Vendor, email Rendered) Result {
	_, err := d.sender.Send(ctx, mailer.Message{
		From:    d.from,
		To:      []string{v.Email},
		Subject: email.Subject,
		HTML:    email.HTML,
		Text:    email.Text,
		ReplyTo: d.replyTo,
	})
	if err != nil {
		metrics.EmailsSent.WithLabelValues("failure").Inc()
		d.logger.Error("failed to send rfp email", "rfp_id", rfpID, "vendor_id", v.ID, "to", v.Email, "error", err)
		return Result{VendorID: v.ID, Error: SendFailure}
	}
	metrics.EmailsSent.WithLabelValues("success").Inc()

	if _, err := d.store.UpsertRFPVendor(rfpID, v.ID, time.Now().UTC()); err != nil {
		d.logger.Error("failed to record rfp engagement", "rfp_id", rfpID, "vendor_id", v.ID, "error", err)
		return Result{VendorID: v.ID, Error: SendFailure}
	}
	return Result{VendorID: v.ID, Success: true}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
