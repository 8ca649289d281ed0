package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/rfpd/internal/storage"
)

type vendorRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Notes string `json:"notes"`
}

func handleListVendors(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendors, err := deps.Store.ListVendors()
		if err != nil {
			internalError(w, "Failed to fetch vendors", err)
			return
		}
		if vendors == nil {
			vendors = []storage.Vendor{}
		}
		writeJSON(w, http.StatusOK, vendors)
	}
}

func handleCreateVendor(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req vendorRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.TrimSpace(req.Email)
		if req.Name == "" || req.Email == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "Name and email are required")
			return
		}

		v, err := deps.Store.CreateVendor(storage.Vendor{Name: req.Name, Email: req.Email, Notes: req.Notes})
		if errors.Is(err, storage.ErrConflict) {
			httpError(w, http.StatusConflict, "conflict", "A vendor with this email already exists")
			return
		}
		if err != nil {
			internalError(w, "Failed to create vendor", err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

func handleGetVendor(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := deps.Store.GetVendor(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "Vendor not found")
			return
		}
		if err != nil {
			internalError(w, "Failed to fetch vendor", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// handleUpdateVendor applies a partial update: absent or empty name and
// email keep their current values.
func handleUpdateVendor(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req vendorRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		current, err := deps.Store.GetVendor(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "Vendor not found")
			return
		}
		if err != nil {
			internalError(w, "Failed to update vendor", err)
			return
		}
		if s := strings.TrimSpace(req.Name); s != "" {
			current.Name = s
		}
		if s := strings.TrimSpace(req.Email); s != "" {
			current.Email = s
		}
		current.Notes = req.Notes

		v, err := deps.Store.UpdateVendor(current)
		if errors.Is(err, storage.ErrConflict) {
			httpError(w, http.StatusConflict, "conflict", "A vendor with this email already exists")
			return
		}
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "Vendor not found")
			return
		}
		if err != nil {
			internalError(w, "Failed to update vendor", err)
			return
		}
		// Vendor names appear in RFP detail and comparison views.
		deps.invalidator().Invalidate("/api/rfps/*")
		writeJSON(w, http.StatusOK, v)
	}
}

func handleDeleteVendor(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteVendor(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "Vendor not found")
			return
		}
		if err != nil {
			internalError(w, "Failed to delete vendor", err)
			return
		}
		deps.invalidator().Invalidate("/api/rfps/*")
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
