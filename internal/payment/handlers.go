package payment

import (
	"net/http"

	"github.com/noah-isme/techshop-api/internal/common"
)

// ConfigHandler exposes the public PayPal client id to storefront clients.
type ConfigHandler struct {
	ClientID string
}

// PayPal handles GET /config/paypal.
func (h ConfigHandler) PayPal(w http.ResponseWriter, r *http.Request) {
	if h.ClientID == "" {
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "PayPal is not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]string{"clientId": h.ClientID})
}
