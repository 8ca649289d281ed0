package api

import (
	"errors"
	"net/http"

	"github.com/kalambet/rfpd/internal/proposal"
)

type parseProposalRequest struct {
	RawEmailID string `json:"rawEmailId"`
}

func handleParseProposal(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req parseProposalRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "rawEmailId is required")
			return
		}

		p, err := deps.Parser.Parse(r.Context(), req.RawEmailID)
		switch {
		case errors.Is(err, proposal.ErrInvalidInput):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "rawEmailId is required")
			return
		case errors.Is(err, proposal.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "Raw email or RFP not found")
			return
		case errors.Is(err, proposal.ErrParse):
			httpError(w, http.StatusInternalServerError, "parse_error", "Failed to parse proposal. Please try again.")
			return
		case err != nil:
			internalError(w, "Failed to parse proposal", err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}
