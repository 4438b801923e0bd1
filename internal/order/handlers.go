package order

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/techshop-api/internal/common"
)

// Handler serves the buyer-facing order endpoints.
type Handler struct {
	Svc *Service
}

func viewerFrom(r *http.Request) (Viewer, bool) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		return Viewer{}, false
	}
	return Viewer{UserID: userID, Admin: common.IsAdmin(r.Context())}, true
}

// Create handles POST /orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	viewer, ok := viewerFrom(r)
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Not authorized, no token"))
		return
	}
	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, r, err)
		return
	}
	o, created, err := h.Svc.Create(r.Context(), viewer.UserID, r.Header.Get(common.IdempotencyHeader), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	common.JSON(w, status, o)
}

// Mine handles GET /orders/myorders.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	viewer, ok := viewerFrom(r)
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Not authorized, no token"))
		return
	}
	orders, err := h.Svc.ListMine(r.Context(), viewer.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	common.JSON(w, http.StatusOK, orders)
}

// Get handles GET /orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	viewer, ok := viewerFrom(r)
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Not authorized, no token"))
		return
	}
	o, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"), viewer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, o)
}

// payRequest accepts the capture details returned by the PayPal buttons
// (payer.email_address) as well as the flat receipt shape.
type payRequest struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
	Payer        struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
}

func (p payRequest) receipt() PaymentResult {
	email := strings.TrimSpace(p.EmailAddress)
	if email == "" {
		email = strings.TrimSpace(p.Payer.EmailAddress)
	}
	return PaymentResult{
		ID:           strings.TrimSpace(p.ID),
		Status:       strings.TrimSpace(p.Status),
		UpdateTime:   strings.TrimSpace(p.UpdateTime),
		EmailAddress: email,
	}
}

// Pay handles PUT /orders/{id}/pay.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	viewer, ok := viewerFrom(r)
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Not authorized, no token"))
		return
	}
	var req payRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	o, err := h.Svc.MarkPaid(r.Context(), chi.URLParam(r, "id"), viewer, req.receipt())
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, o)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNoItems):
		common.WriteError(w, r, common.BadRequest("No order items", err))
	case errors.Is(err, ErrTotalsMismatch):
		common.WriteError(w, r, common.BadRequest("Order totals do not match the items", err))
	case errors.Is(err, ErrNotFound):
		common.WriteError(w, r, common.NotFound("Order not found", err))
	case errors.Is(err, ErrAlreadyPaid):
		common.WriteError(w, r, common.Conflict("Order already paid", err))
	case errors.Is(err, ErrNotPaid):
		common.WriteError(w, r, common.Conflict("Order is not paid", err))
	case errors.Is(err, ErrAlreadyDelivered):
		common.WriteError(w, r, common.Conflict("Order already delivered", err))
	case errors.Is(err, ErrReceiptUsed):
		common.WriteError(w, r, common.NewAppError("RECEIPT_USED", "Payment already used for another order", http.StatusConflict, err))
	case errors.Is(err, ErrPaymentUnverified):
		common.WriteError(w, r, common.NewAppError("PAYMENT_UNVERIFIED", "Payment could not be verified", http.StatusPaymentRequired, err))
	default:
		common.WriteError(w, r, err)
	}
}
