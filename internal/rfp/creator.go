// Package rfp turns a free-text procurement request into a draft RFP.
package rfp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/rfpd/internal/events"
	"github.com/kalambet/rfpd/internal/jsonx"
	"github.com/kalambet/rfpd/internal/metrics"
	"github.com/kalambet/rfpd/internal/storage"
	"github.com/kalambet/rfpd/internal/textgen"
	"github.com/kalambet/rfpd/internal/viewcache"
)

// DefaultTitle is used when the model does not return a title.
const DefaultTitle = "Untitled RFP"

const operation = "create_rfp"

var (
	// ErrEmptyInput is returned for a blank request.
	ErrEmptyInput = errors.New("naturalLanguage is required")
	// ErrParse is returned when the model output holds no usable JSON object.
	ErrParse = errors.New("failed to parse model output")
)

// Creator builds RFPs with a text generator and persists them as drafts.
type Creator struct {
	gen       textgen.Generator
	store     *storage.Store
	publisher events.Publisher
	views     viewcache.Invalidator
	logger    *slog.Logger
}

// NewCreator returns a Creator. A nil publisher or invalidator is replaced by
// a no-op.
func NewCreator(gen textgen.Generator, store *storage.Store, publisher events.Publisher, views viewcache.Invalidator) *Creator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if views == nil {
		views = viewcache.Nop{}
	}
	return &Creator{gen: gen, store: store, publisher: publisher, views: views, logger: slog.Default()}
}

// Create asks the model to structure naturalLanguage and stores the result
// with status draft.
func (c *Creator) Create(ctx context.Context, naturalLanguage string) (storage.RFP, error) {
	if strings.TrimSpace(naturalLanguage) == "" {
		return storage.RFP{}, ErrEmptyInput
	}

	start := time.Now()
	raw, err := c.gen.Generate(ctx, BuildPrompt(naturalLanguage))
	metrics.LLMDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCalls.WithLabelValues(operation, "upstream_error").Inc()
		return storage.RFP{}, fmt.Errorf("generating rfp: %w", err)
	}

	var fields map[string]any
	if err := jsonx.Decode(raw, &fields); err != nil {
		metrics.LLMCalls.WithLabelValues(operation, "parse_error").Inc()
		c.logger.Warn("failed to parse rfp from model output", "error", err, "response", jsonx.Truncate(raw, 2000))
		return storage.RFP{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	metrics.LLMCalls.WithLabelValues(operation, "ok").Inc()

	p, err := c.store.CreateRFP(FromFields(fields))
	if err != nil {
		return storage.RFP{}, fmt.Errorf("storing rfp: %w", err)
	}

	c.views.Invalidate("/api/rfps")
	events.Emit(ctx, c.publisher, events.SubjectRFPCreated, p)
	c.logger.Info("created rfp", "rfp_id", p.ID, "items", len(p.Items))
	return p, nil
}

// FromFields maps a decoded extraction object onto a draft RFP. Missing or
// null fields become empty; items without a name are dropped.
func FromFields(fields map[string]any) storage.RFP {
	p := storage.RFP{
		Title:            jsonx.String(fields["title"]),
		Description:      jsonx.String(fields["description"]),
		Budget:           jsonx.String(fields["budget"]),
		DeliveryTimeline: jsonx.String(fields["deliveryTimeline"]),
		PaymentTerms:     jsonx.String(fields["paymentTerms"]),
		Warranty:         jsonx.String(fields["warranty"]),
		Status:           storage.RFPStatusDraft,
		Items:            []storage.Item{},
	}
	if p.Title == "" {
		p.Title = DefaultTitle
	}
	for _, v := range jsonx.Array(fields["items"]) {
		obj := jsonx.Object(v)
		if obj == nil {
			continue
		}
		item := storage.Item{
			Name:           jsonx.String(obj["name"]),
			Quantity:       jsonx.String(obj["quantity"]),
			Specifications: jsonx.String(obj["specifications"]),
		}
		if item.Name == "" {
			continue
		}
		p.Items = append(p.Items, item)
	}
	return p
}
