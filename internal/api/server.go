package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/rfpd/internal/dispatch"
	"github.com/kalambet/rfpd/internal/inbound"
	"github.com/kalambet/rfpd/internal/metrics"
	"github.com/kalambet/rfpd/internal/storage"
	"github.com/kalambet/rfpd/internal/viewcache"
)

const maxRequestBodySize = 1 << 20 // 1MB

// maxWebhookBodySize allows inline attachments in inbound deliveries.
const maxWebhookBodySize = 25 << 20

// RFPCreator builds a draft RFP from free text.
type RFPCreator interface {
	Create(ctx context.Context, naturalLanguage string) (storage.RFP, error)
}

// RFPDispatcher emails an RFP to vendors.
type RFPDispatcher interface {
	Send(ctx context.Context, rfpID string, vendorIDs []string) ([]dispatch.Result, error)
}

// ProposalParser extracts a proposal from a stored reply.
type ProposalParser interface {
	Parse(ctx context.Context, rawEmailID string) (storage.Proposal, error)
}

// Recommender compares the proposals of an RFP.
type Recommender interface {
	Recommend(ctx context.Context, rfpID string) (json.RawMessage, error)
}

// InboundHandler correlates a verified webhook event.
type InboundHandler interface {
	Handle(ctx context.Context, ev inbound.Event) (inbound.Outcome, error)
}

type Deps struct {
	Store       *storage.Store
	Creator     RFPCreator
	Dispatcher  RFPDispatcher
	Parser      ProposalParser
	Recommender Recommender
	Inbound     InboundHandler
	Verifier    *inbound.Verifier
	// Views caches rendered reads; nil disables caching.
	Views *viewcache.Cache
	// Token enables bearer auth on /api routes except the webhook.
	Token string
}

func (d Deps) invalidator() viewcache.Invalidator {
	if d.Views == nil {
		return viewcache.Nop{}
	}
	return d.Views
}

// NewHandler returns the HTTP surface of rfpd.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks/resend", handleResendWebhook(deps))

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.Token))

			r.Get("/vendors", handleListVendors(deps))
			r.Post("/vendors", handleCreateVendor(deps))
			r.Get("/vendors/{id}", handleGetVendor(deps))
			r.Put("/vendors/{id}", handleUpdateVendor(deps))
			r.Delete("/vendors/{id}", handleDeleteVendor(deps))

			r.Post("/rfps/create", handleCreateRFP(deps))
			r.Post("/rfps/{id}/send", handleSendRFP(deps))
			r.Get("/rfps/{id}/recommend", handleRecommend(deps))
			r.Put("/rfps/{id}", handleUpdateRFP(deps))
			r.Delete("/rfps/{id}", handleDeleteRFP(deps))

			r.Group(func(r chi.Router) {
				if deps.Views != nil {
					r.Use(cacheViews(deps.Views))
				}
				r.Get("/rfps", handleListRFPs(deps))
				r.Get("/rfps/{id}", handleGetRFP(deps))
				r.Get("/rfps/{id}/compare", handleCompare(deps))
				r.Get("/rfps/{id}/emails", handleListEmails(deps))
			})

			r.Post("/proposals/parse", handleParseProposal(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// countRequests records every response by route pattern.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// internalError logs err and answers with a generic message.
func internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	httpError(w, http.StatusInternalServerError, "api_error", "%s", msg)
}
