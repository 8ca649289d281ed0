// Package inbound turns mail-provider webhook deliveries into stored vendor
// replies linked to the RFP they answer.
package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/rfpd/internal/events"
	"github.com/kalambet/rfpd/internal/mailer"
	"github.com/kalambet/rfpd/internal/metrics"
	"github.com/kalambet/rfpd/internal/storage"
	"github.com/kalambet/rfpd/internal/viewcache"
)

// EventEmailReceived is the only event type that carries a reply.
const EventEmailReceived = "email.received"

// JobParseProposal is the job type enqueued for automatic extraction.
const JobParseProposal = "parse_proposal"

// Outcome statuses.
const (
	StatusIgnored       = "ignored"
	StatusUnknownSender = "unknown_sender"
	StatusNoRFP         = "no_rfp"
	StatusDuplicate     = "duplicate"
	StatusStored        = "stored"
)

// Event is the webhook envelope.
type Event struct {
	Type      string    `json:"type"`
	CreatedAt string    `json:"created_at,omitempty"`
	Data      EventData `json:"data"`
}

// EventData is the email part of the envelope. Body fields are often absent
// and fetched separately.
type EventData struct {
	EmailID     string          `json:"email_id"`
	ID          string          `json:"id"`
	From        json.RawMessage `json:"from"`
	FromEmail   string          `json:"from_email"`
	Subject     string          `json:"subject"`
	Text        string          `json:"text"`
	HTML        string          `json:"html"`
	Attachments json.RawMessage `json:"attachments"`
}

// ProviderID returns the provider's message id, if any.
func (d EventData) ProviderID() string {
	if d.EmailID != "" {
		return d.EmailID
	}
	return d.ID
}

// Outcome reports what Handle did with an event.
type Outcome struct {
	Status     string `json:"status"`
	RawEmailID string `json:"rawEmailId,omitempty"`
	RFPID      string `json:"rfpId,omitempty"`
	VendorID   string `json:"vendorId,omitempty"`
}

// Fetcher retrieves a received message's full content from the provider.
type Fetcher interface {
	GetReceived(ctx context.Context, id string) (mailer.ReceivedEmail, error)
}

// AutoParsePayload is the job payload for JobParseProposal.
type AutoParsePayload struct {
	RawEmailID string `json:"rawEmailId"`
}

// Correlator resolves (vendor, RFP) for inbound replies and persists them.
type Correlator struct {
	store     *storage.Store
	fetcher   Fetcher
	publisher events.Publisher
	views     viewcache.Invalidator
	autoParse bool
	logger    *slog.Logger
}

// Option configures a Correlator.
type Option func(*Correlator)

func WithFetcher(f Fetcher) Option { return func(c *Correlator) { c.fetcher = f } }

func WithPublisher(p events.Publisher) Option { return func(c *Correlator) { c.publisher = p } }

func WithViews(v viewcache.Invalidator) Option { return func(c *Correlator) { c.views = v } }

// WithAutoParse enqueues proposal extraction for every stored reply.
func WithAutoParse(on bool) Option { return func(c *Correlator) { c.autoParse = on } }

func NewCorrelator(store *storage.Store, opts ...Option) *Correlator {
	c := &Correlator{
		store:     store,
		publisher: events.Nop{},
		views:     viewcache.Nop{},
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Handle processes one verified event. Unresolvable events are reported
// through Outcome, not as errors; an error means the store failed.
func (c *Correlator) Handle(ctx context.Context, ev Event) (Outcome, error) {
	out, err := c.handle(ctx, ev)
	if err != nil {
		metrics.WebhookOutcomes.WithLabelValues("error").Inc()
		return out, err
	}
	metrics.WebhookOutcomes.WithLabelValues(out.Status).Inc()
	return out, nil
}

func (c *Correlator) handle(ctx context.Context, ev Event) (Outcome, error) {
	if ev.Type != EventEmailReceived {
		c.logger.Debug("ignoring webhook event", "type", ev.Type)
		return Outcome{Status: StatusIgnored}, nil
	}
	data := ev.Data

	sender, err := ParseSender(data.From, data.FromEmail)
	if err != nil {
		c.logger.Info("inbound email without sender", "subject", data.Subject)
		return Outcome{Status: StatusUnknownSender}, nil
	}

	vendor, err := c.store.GetVendorByEmail(sender)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Info("no vendor found for email", "from", sender)
		return Outcome{Status: StatusUnknownSender}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("looking up vendor: %w", err)
	}

	link, err := c.resolveLink(vendor.ID, data.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Info("no RFP found for vendor", "vendor_id", vendor.ID, "subject", data.Subject)
		return Outcome{Status: StatusNoRFP, VendorID: vendor.ID}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving rfp: %w", err)
	}

	providerID := data.ProviderID()
	if existing, err := c.store.GetRawEmailByProviderID(providerID); err == nil {
		c.logger.Info("duplicate webhook delivery", "provider_id", providerID, "raw_email_id", existing.ID)
		return Outcome{Status: StatusDuplicate, RawEmailID: existing.ID, RFPID: existing.RFPID, VendorID: existing.VendorID}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Outcome{}, fmt.Errorf("checking duplicate: %w", err)
	}

	body, attachments := c.resolveBody(ctx, data, providerID)

	raw, err := c.store.CreateRawEmail(storage.RawEmail{
		RFPID:             link.RFPID,
		VendorID:          vendor.ID,
		Subject:           data.Subject,
		FromEmail:         sender,
		Body:              body,
		Attachments:       attachments,
		ProviderMessageID: providerID,
	})
	if errors.Is(err, storage.ErrConflict) {
		// A concurrent delivery of the same message won the insert.
		existing, lookupErr := c.store.GetRawEmailByProviderID(providerID)
		if lookupErr != nil {
			return Outcome{}, fmt.Errorf("loading concurrent duplicate: %w", lookupErr)
		}
		return Outcome{Status: StatusDuplicate, RawEmailID: existing.ID, RFPID: existing.RFPID, VendorID: existing.VendorID}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("storing raw email: %w", err)
	}

	if err := c.store.SetRFPVendorStatus(link.ID, storage.LinkStatusResponded); err != nil {
		return Outcome{}, fmt.Errorf("marking vendor responded: %w", err)
	}
	if _, err := c.store.AdvanceRFPStatus(link.RFPID, storage.RFPStatusResponded); err != nil {
		return Outcome{}, fmt.Errorf("advancing rfp status: %w", err)
	}

	c.views.Invalidate(viewcache.RFPViews(link.RFPID)...)
	events.Emit(ctx, c.publisher, events.SubjectEmailReceived, raw)

	if c.autoParse {
		payload, _ := json.Marshal(AutoParsePayload{RawEmailID: raw.ID})
		if err := c.store.EnqueueJob(storage.Job{Type: JobParseProposal, PayloadJSON: string(payload)}); err != nil {
			c.logger.Warn("failed to enqueue proposal extraction", "raw_email_id", raw.ID, "error", err)
		}
	}

	c.logger.Info("stored vendor reply", "raw_email_id", raw.ID, "rfp_id", link.RFPID, "vendor_id", vendor.ID)
	return Outcome{Status: StatusStored, RawEmailID: raw.ID, RFPID: link.RFPID, VendorID: vendor.ID}, nil
}

// resolveLink prefers the pair named by the subject tag and falls back to
// the vendor's most recently sent engagement.
func (c *Correlator) resolveLink(vendorID, subject string) (storage.RFPVendor, error) {
	if rfpID := ParseRefTag(subject); rfpID != "" {
		link, err := c.store.GetRFPVendor(rfpID, vendorID)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return storage.RFPVendor{}, err
		}
		c.logger.Debug("subject tag does not match an engagement", "rfp_id", rfpID, "vendor_id", vendorID)
	}
	return c.store.LatestRFPVendorForVendor(vendorID)
}

// resolveBody returns the reply text and the attachments JSON, fetching the
// message from the provider when the webhook carried no body.
func (c *Correlator) resolveBody(ctx context.Context, data EventData, providerID string) (string, string) {
	body := bodyText(data.Text, data.HTML)
	attachments := rawJSON(data.Attachments)

	if body != "" || providerID == "" || c.fetcher == nil {
		return body, attachments
	}

	full, err := c.fetcher.GetReceived(ctx, providerID)
	if err != nil {
		c.logger.Warn("failed to fetch email content", "provider_id", providerID, "error", err)
		return body, attachments
	}
	body = bodyText(full.Text, full.HTML)
	if attachments == "" {
		attachments = rawJSON(full.Attachments)
	}
	return body, attachments
}

func bodyText(text, html string) string {
	if strings.TrimSpace(text) != "" {
		if mailer.LooksLikeHTML(text) {
			return mailer.ToText(text)
		}
		return text
	}
	if strings.TrimSpace(html) != "" {
		return mailer.ToText(html)
	}
	return ""
}

func rawJSON(m json.RawMessage) string {
	s := strings.TrimSpace(string(m))
	if s == "" || s == "null" || s == "[]" {
		return ""
	}
	return s
}
