package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/techshop-api/internal/common"
)

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	Svc      *Service
	PageSize int
}

type listResponse struct {
	Orders []Order `json:"orders"`
	common.Page
}

// List handles GET /orders.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	size := h.PageSize
	if size <= 0 {
		size = 20
	}
	page, perPage := common.ParsePagination(r, size)
	orders, meta, err := h.Svc.ListAll(r.Context(), page, perPage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	common.JSON(w, http.StatusOK, listResponse{Orders: orders, Page: meta})
}

// Deliver handles PUT /orders/{id}/deliver.
func (h *AdminHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	o, err := h.Svc.MarkDelivered(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, o)
}

// Purge handles DELETE /orders/{id}.
func (h *AdminHandler) Purge(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	if err := h.Svc.Purge(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
