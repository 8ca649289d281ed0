package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/kalambet/rfpd/internal/inbound"
	"github.com/kalambet/rfpd/internal/metrics"
)

type webhookResponse struct {
	Success    bool   `json:"success"`
	Status     string `json:"status,omitempty"`
	RawEmailID string `json:"rawEmailId,omitempty"`
}

// handleResendWebhook verifies and correlates an inbound mail delivery.
// Unresolvable deliveries are acknowledged with 200 so the provider does
// not retry them.
func handleResendWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read body: %v", err)
			return
		}

		if deps.Verifier != nil {
			if err := deps.Verifier.Verify(r.Header, body); err != nil {
				metrics.WebhookOutcomes.WithLabelValues("unauthorized").Inc()
				slog.Warn("rejected webhook", "error", err)
				httpError(w, http.StatusUnauthorized, "authentication_error", "Invalid signature")
				return
			}
		}

		var ev inbound.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid webhook payload: %v", err)
			return
		}

		out, err := deps.Inbound.Handle(r.Context(), ev)
		if err != nil {
			internalError(w, "Failed to process webhook", err)
			return
		}
		writeJSON(w, http.StatusOK, webhookResponse{Success: true, Status: out.Status, RawEmailID: out.RawEmailID})
	}
}
