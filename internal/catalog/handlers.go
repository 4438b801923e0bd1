package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/techshop-api/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return false
	}
	return true
}

// Products handles GET /products?keyword=&pageNumber=.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	page, size := common.ParsePagination(r, h.service.PageSize())
	out, err := h.service.Products(r.Context(), r.URL.Query().Get("keyword"), page, size)
	if err != nil {
		writeError(w, r, err, "Product not found")
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// ProductsByCategory handles GET /products/category/{categoryId}.
func (h *Handler) ProductsByCategory(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	page, size := common.ParsePagination(r, h.service.PageSize())
	out, err := h.service.ProductsByCategory(r.Context(), chi.URLParam(r, "categoryId"), page, size)
	if err != nil {
		writeError(w, r, err, "Category not found")
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Featured handles GET /products/featured.
func (h *Handler) Featured(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out, err := h.service.Featured(r.Context())
	if err != nil {
		writeError(w, r, err, "Product not found")
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Top handles GET /products/top.
func (h *Handler) Top(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out, err := h.service.Top(r.Context())
	if err != nil {
		writeError(w, r, err, "Product not found")
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Newest handles GET /products/new.
func (h *Handler) Newest(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out, err := h.service.Newest(r.Context())
	if err != nil {
		writeError(w, r, err, "Product not found")
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Product handles GET /products/{id}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out, err := h.service.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "Product not found")
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Categories handles GET /categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out, err := h.service.Categories(r.Context())
	if err != nil {
		writeError(w, r, err, "Category not found")
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// FeaturedCategories handles GET /categories/featured.
func (h *Handler) FeaturedCategories(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out, err := h.service.FeaturedCategories(r.Context())
	if err != nil {
		writeError(w, r, err, "Category not found")
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Category handles GET /categories/{id}.
func (h *Handler) Category(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out, err := h.service.Category(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "Category not found")
		return
	}
	common.JSON(w, http.StatusOK, out)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, ErrNotFound) {
		common.WriteError(w, r, common.NotFound(notFound, err))
		return
	}
	common.WriteError(w, r, err)
}
