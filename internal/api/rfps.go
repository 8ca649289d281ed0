package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/rfpd/internal/dispatch"
	"github.com/kalambet/rfpd/internal/proposal"
	"github.com/kalambet/rfpd/internal/rfp"
	"github.com/kalambet/rfpd/internal/storage"
	"github.com/kalambet/rfpd/internal/viewcache"
)

type createRFPRequest struct {
	NaturalLanguage string `json:"naturalLanguage"`
}

// updateRFPRequest holds the editable fields; nil fields are left unchanged.
type updateRFPRequest struct {
	Title            *string         `json:"title"`
	Description      *string         `json:"description"`
	Items            *[]storage.Item `json:"items"`
	Budget           *string         `json:"budget"`
	DeliveryTimeline *string         `json:"deliveryTimeline"`
	PaymentTerms     *string         `json:"paymentTerms"`
	Warranty         *string         `json:"warranty"`
	Status           *string         `json:"status"`
}

type sendRFPRequest struct {
	VendorIDs []string `json:"vendorIds"`
}

type rfpDetail struct {
	storage.RFP
	Vendors   []storage.RFPVendor `json:"vendors"`
	Proposals []storage.Proposal  `json:"proposals"`
}

type comparison struct {
	RFP       storage.RFP        `json:"rfp"`
	Proposals []storage.Proposal `json:"proposals"`
}

func handleCreateRFP(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRFPRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "naturalLanguage is required")
			return
		}

		p, err := deps.Creator.Create(r.Context(), req.NaturalLanguage)
		switch {
		case errors.Is(err, rfp.ErrEmptyInput):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "naturalLanguage is required")
			return
		case errors.Is(err, rfp.ErrParse):
			httpError(w, http.StatusInternalServerError, "parse_error", "Failed to parse AI response. Please try again.")
			return
		case err != nil:
			internalError(w, "Failed to create RFP", err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleListRFPs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rfps, err := deps.Store.ListRFPs()
		if err != nil {
			internalError(w, "Failed to fetch RFPs", err)
			return
		}
		if rfps == nil {
			rfps = []storage.RFP{}
		}
		writeJSON(w, http.StatusOK, rfps)
	}
}

func handleGetRFP(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, ok := loadRFP(w, deps, id)
		if !ok {
			return
		}
		vendors, err := deps.Store.ListRFPVendors(id)
		if err != nil {
			internalError(w, "Failed to fetch RFP", err)
			return
		}
		proposals, err := deps.Store.ListProposals(id)
		if err != nil {
			internalError(w, "Failed to fetch RFP", err)
			return
		}
		if vendors == nil {
			vendors = []storage.RFPVendor{}
		}
		if proposals == nil {
			proposals = []storage.Proposal{}
		}
		p.VendorCount = len(vendors)
		writeJSON(w, http.StatusOK, rfpDetail{RFP: p, Vendors: vendors, Proposals: proposals})
	}
}

func handleUpdateRFP(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req updateRFPRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		p, ok := loadRFP(w, deps, id)
		if !ok {
			return
		}

		if req.Title != nil {
			p.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Items != nil {
			p.Items = *req.Items
		}
		if req.Budget != nil {
			p.Budget = *req.Budget
		}
		if req.DeliveryTimeline != nil {
			p.DeliveryTimeline = *req.DeliveryTimeline
		}
		if req.PaymentTerms != nil {
			p.PaymentTerms = *req.PaymentTerms
		}
		if req.Warranty != nil {
			p.Warranty = *req.Warranty
		}
		if req.Status != nil {
			p.Status = *req.Status
		}
		if p.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title must not be empty")
			return
		}
		if !storage.ValidRFPStatus(p.Status) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid status %q", p.Status)
			return
		}

		updated, err := deps.Store.UpdateRFP(p)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "RFP not found")
			return
		}
		if err != nil {
			internalError(w, "Failed to update RFP", err)
			return
		}
		deps.invalidator().Invalidate(viewcache.RFPViews(id)...)
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleDeleteRFP(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.DeleteRFP(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "RFP not found")
			return
		}
		if err != nil {
			internalError(w, "Failed to delete RFP", err)
			return
		}
		deps.invalidator().Invalidate(viewcache.RFPViews(id)...)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func handleSendRFP(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRFPRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "At least one vendor must be selected")
			return
		}

		results, err := deps.Dispatcher.Send(r.Context(), chi.URLParam(r, "id"), req.VendorIDs)
		switch {
		case errors.Is(err, dispatch.ErrNoVendors):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "At least one vendor must be selected")
			return
		case errors.Is(err, dispatch.ErrRFPNotFound):
			httpError(w, http.StatusNotFound, "not_found", "RFP not found")
			return
		case errors.Is(err, dispatch.ErrVendorNotFound):
			httpError(w, http.StatusNotFound, "not_found", "One or more vendors not found")
			return
		case err != nil:
			internalError(w, "Failed to send RFP", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

func handleRecommend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.Recommender.Recommend(r.Context(), chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, proposal.ErrRFPNotFound):
			httpError(w, http.StatusNotFound, "not_found", "RFP not found")
			return
		case errors.Is(err, proposal.ErrNoProposals):
			httpError(w, http.StatusNotFound, "not_found", "No proposals found for this RFP")
			return
		case errors.Is(err, proposal.ErrParse):
			httpError(w, http.StatusInternalServerError, "parse_error", "Failed to generate recommendation. Please try again.")
			return
		case err != nil:
			internalError(w, "Failed to generate recommendation", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(rec)
	}
}

func handleCompare(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, ok := loadRFP(w, deps, id)
		if !ok {
			return
		}
		proposals, err := deps.Store.ListProposals(id)
		if err != nil {
			internalError(w, "Failed to fetch proposals", err)
			return
		}
		if proposals == nil {
			proposals = []storage.Proposal{}
		}
		writeJSON(w, http.StatusOK, comparison{RFP: p, Proposals: proposals})
	}
}

func handleListEmails(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := loadRFP(w, deps, id); !ok {
			return
		}
		emails, err := deps.Store.ListRawEmails(id)
		if err != nil {
			internalError(w, "Failed to fetch emails", err)
			return
		}
		if emails == nil {
			emails = []storage.RawEmail{}
		}
		writeJSON(w, http.StatusOK, emails)
	}
}

// loadRFP writes the error response itself and reports whether p is usable.
func loadRFP(w http.ResponseWriter, deps Deps, id string) (storage.RFP, bool) {
	p, err := deps.Store.GetRFP(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "RFP not found")
		return storage.RFP{}, false
	}
	if err != nil {
		internalError(w, "Failed to fetch RFP", err)
		return storage.RFP{}, false
	}
	return p, true
}
