// Package proposal structures vendor replies into proposals and asks the
// model to recommend one of them.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kalambet/rfpd/internal/attach"
	"github.com/kalambet/rfpd/internal/events"
	"github.com/kalambet/rfpd/internal/jsonx"
	"github.com/kalambet/rfpd/internal/metrics"
	"github.com/kalambet/rfpd/internal/storage"
	"github.com/kalambet/rfpd/internal/textgen"
	"github.com/kalambet/rfpd/internal/viewcache"
)

var (
	// ErrInvalidInput is returned when no raw email id is given.
	ErrInvalidInput = errors.New("rawEmailId is required")
	// ErrNotFound is returned when the raw email or its RFP does not exist.
	ErrNotFound = errors.New("raw email or RFP not found")
	// ErrParse is returned when the model output holds no usable JSON object.
	ErrParse = errors.New("failed to parse model output")
	// ErrUpstream is returned when the model request itself fails.
	ErrUpstream = errors.New("model request failed")
)

// Extractor turns a stored RawEmail into a Proposal.
type Extractor struct {
	gen       textgen.Generator
	store     *storage.Store
	publisher events.Publisher
	views     viewcache.Invalidator
	logger    *slog.Logger
}

// NewExtractor returns an Extractor. A nil publisher or invalidator is
// replaced by a no-op.
func NewExtractor(gen textgen.Generator, store *storage.Store, publisher events.Publisher, views viewcache.Invalidator) *Extractor {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if views == nil {
		views = viewcache.Nop{}
	}
	return &Extractor{gen: gen, store: store, publisher: publisher, views: views, logger: slog.Default()}
}

// Parse extracts pricing and terms from the raw email and stores them as a
// new Proposal. Parsing the same email twice stores two proposals.
func (e *Extractor) Parse(ctx context.Context, rawEmailID string) (storage.Proposal, error) {
	rawEmailID = strings.TrimSpace(rawEmailID)
	if rawEmailID == "" {
		return storage.Proposal{}, ErrInvalidInput
	}

	email, err := e.store.GetRawEmail(rawEmailID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Proposal{}, ErrNotFound
	}
	if err != nil {
		return storage.Proposal{}, fmt.Errorf("loading raw email: %w", err)
	}
	rfp, err := e.store.GetRFP(email.RFPID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Proposal{}, ErrNotFound
	}
	if err != nil {
		return storage.Proposal{}, fmt.Errorf("loading rfp: %w", err)
	}

	content := email.Body + attach.TextFromJSON(email.Attachments)

	const op = "parse_proposal"
	start := time.Now()
	raw, err := e.gen.Generate(ctx, BuildParsePrompt(content, rfp.Items))
	metrics.LLMDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCalls.WithLabelValues(op, "upstream_error").Inc()
		return storage.Proposal{}, fmt.Errorf("%w: generating proposal: %w", ErrUpstream, err)
	}

	var fields map[string]any
	if err := jsonx.Decode(raw, &fields); err != nil {
		metrics.LLMCalls.WithLabelValues(op, "parse_error").Inc()
		e.logger.Warn("failed to parse proposal from model output",
			"raw_email_id", rawEmailID, "error", err, "response", jsonx.Truncate(raw, 2000))
		return storage.Proposal{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	metrics.LLMCalls.WithLabelValues(op, "ok").Inc()

	p := FromFields(fields)
	p.RawEmailID = email.ID
	p.RFPID = email.RFPID
	p.VendorID = email.VendorID

	p, err = e.store.CreateProposal(p)
	if err != nil {
		return storage.Proposal{}, fmt.Errorf("storing proposal: %w", err)
	}

	e.views.Invalidate(viewcache.RFPViews(p.RFPID)...)
	events.Emit(ctx, e.publisher, events.SubjectProposalCreated, p)
	e.logger.Info("parsed proposal", "proposal_id", p.ID, "raw_email_id", rawEmailID, "rfp_id", p.RFPID)
	return p, nil
}

// FromFields maps a decoded extraction object onto a Proposal. The
// completeness score is kept only when numeric and is clamped to [0, 1].
func FromFields(fields map[string]any) storage.Proposal {
	p := storage.Proposal{
		TotalCost:     jsonx.String(fields["totalCost"]),
		DeliveryTerms: jsonx.String(fields["deliveryTerms"]),
		PaymentTerms:  jsonx.String(fields["paymentTerms"]),
		Warranty:      jsonx.String(fields["warranty"]),
		LineItems:     []storage.LineItem{},
	}
	for _, v := range jsonx.Array(fields["lineItems"]) {
		obj := jsonx.Object(v)
		if obj == nil {
			continue
		}
		p.LineItems = append(p.LineItems, storage.LineItem{
			ItemName:       jsonx.String(obj["itemName"]),
			Price:          jsonx.String(obj["price"]),
			Quantity:       jsonx.String(obj["quantity"]),
			Specifications: jsonx.String(obj["specifications"]),
		})
	}
	if score := jsonx.Float(fields["completenessScore"]); !math.IsNaN(score) && !math.IsInf(score, 0) {
		score = math.Max(0, math.Min(1, score))
		p.CompletenessScore = &score
	}
	return p
}
