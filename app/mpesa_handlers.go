package app

import (
	"errors"
	"io"
	"net/http"

	"github.com/sethmwebi/medrin-jobs-backend/app/billing"
	"github.com/sethmwebi/medrin-jobs-backend/app/logging"
	"github.com/sethmwebi/medrin-jobs-backend/app/models"

	"github.com/gin-gonic/gin"
)

type payRequest struct {
	Plan        models.Plan `json:"plan"`
	PhoneNumber string      `json:"phoneNumber"`
}

// MpesaPay sends an STK push to the payer's phone for the requested plan.
func (h *Handlers) MpesaPay(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.Tracker.InitiateMobileMoneyRequest(c.Request.Context(), id, req.Plan, req.PhoneNumber)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"checkoutRequestId": res.CheckoutRequestID,
		"merchantRequestId": res.MerchantRequestID,
		"customerMessage":   res.CustomerMessage,
		"amount":            res.Amount,
	})
}

// MpesaCallback receives the STK push result. Any payload that parses is
// acknowledged so the gateway does not keep redelivering it; processing
// failures are logged only.
func (h *Handlers) MpesaCallback(c *gin.Context) {
	l := logging.FromContext(c.Request.Context())

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	cb, err := billing.ParseCallback(body)
	if err != nil {
		l.Warn().Err(err).Msg("mpesa callback rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": billing.PublicMessage(err)})
		return
	}

	outcome, err := h.Tracker.HandleMobileMoneyCallback(c.Request.Context(), cb)
	ev := l.Info()
	if err != nil {
		ev = l.Error().Err(err)
		if errors.Is(err, billing.ErrNotFound) || errors.Is(err, billing.ErrValidation) {
			ev = l.Warn().Err(err)
		}
	}
	ev.Str("checkout_request_id", cb.CheckoutRequestID).Str("outcome", string(outcome)).Msg("mpesa callback handled")

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}
