package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/rfpd/internal/jsonx"
	"github.com/kalambet/rfpd/internal/metrics"
	"github.com/kalambet/rfpd/internal/storage"
	"github.com/kalambet/rfpd/internal/textgen"
)

// UnknownVendor names proposals whose vendor was deleted.
const UnknownVendor = "Unknown vendor"

var (
	ErrRFPNotFound = errors.New("RFP not found")
	ErrNoProposals = errors.New("no proposals found for this RFP")
)

// Recommender compares the proposals of an RFP.
type Recommender struct {
	gen    textgen.Generator
	store  *storage.Store
	logger *slog.Logger
}

func NewRecommender(gen textgen.Generator, store *storage.Store) *Recommender {
	return &Recommender{gen: gen, store: store, logger: slog.Default()}
}

// Recommend asks the model which vendor to pick and returns its JSON object
// unchanged. Results are neither stored nor cached.
func (r *Recommender) Recommend(ctx context.Context, rfpID string) (json.RawMessage, error) {
	rfp, err := r.store.GetRFP(rfpID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRFPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading rfp: %w", err)
	}

	proposals, err := r.store.ListProposals(rfpID)
	if err != nil {
		return nil, fmt.Errorf("listing proposals: %w", err)
	}
	if len(proposals) == 0 {
		return nil, ErrNoProposals
	}

	vps := make([]VendorProposal, len(proposals))
	for i, p := range proposals {
		name := UnknownVendor
		if p.Vendor != nil {
			name = p.Vendor.Name
		}
		vps[i] = VendorProposal{VendorName: name, Proposal: p}
	}

	const op = "recommend"
	start := time.Now()
	raw, err := r.gen.Generate(ctx, BuildRecommendationPrompt(rfp.Title, vps))
	metrics.LLMDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCalls.WithLabelValues(op, "upstream_error").Inc()
		return nil, fmt.Errorf("%w: generating recommendation: %w", ErrUpstream, err)
	}

	obj, err := jsonx.ExtractObject(raw)
	if err != nil {
		metrics.LLMCalls.WithLabelValues(op, "parse_error").Inc()
		r.logger.Warn("failed to parse recommendation from model output",
			"rfp_id", rfpID, "error", err, "response", jsonx.Truncate(raw, 2000))
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	metrics.LLMCalls.WithLabelValues(op, "ok").Inc()
	return obj, nil
}
