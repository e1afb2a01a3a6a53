package app

import (
	"net/http"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"

	"github.com/gin-gonic/gin"
)

type paymentIntentRequest struct {
	Amount float64     `json:"amount"`
	Plan   models.Plan `json:"plan"`
}

// CreatePaymentIntent starts a card payment for the authenticated account.
func (h *Handlers) CreatePaymentIntent(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req paymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.Tracker.CreatePaymentIntent(c.Request.Context(), id, req.Amount, req.Plan)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clientSecret": res.ClientSecret,
		"id":           res.ID,
		"amount":       res.Amount,
		"currency":     res.Currency,
	})
}

type paymentSuccessRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

// PaymentSuccess confirms a card payment after the client finished it.
// Replays of the same intent are acknowledged without a second record.
func (h *Handlers) PaymentSuccess(c *gin.Context) {
	if _, ok := accountID(c); !ok {
		return
	}
	var req paymentSuccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.Tracker.ConfirmPayment(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Payment successful",
		"duplicate":    res.Duplicate,
		"plan":         res.Account.Plan,
		"jobPostQuota": res.Account.RemainingQuota(),
	})
}

type createSubscriptionRequest struct {
	Plan            models.Plan `json:"plan"`
	PaymentMethodID string      `json:"paymentMethodId"`
}

// CreateSubscription starts a recurring card subscription and applies the plan.
func (h *Handlers) CreateSubscription(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	acc, sub, err := h.Tracker.CreateSubscription(c.Request.Context(), id, req.Plan, req.PaymentMethodID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Subscription created successfully",
		"subscription": gin.H{
			"id":     sub.ID,
			"status": sub.Status,
		},
		"plan":                acc.Plan,
		"jobPostQuota":        acc.RemainingQuota(),
		"subscriptionEndDate": acc.SubscriptionEnd,
	})
}

// CancelSubscription stops renewal. The current term runs to its end date.
func (h *Handlers) CancelSubscription(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	acc, err := h.Tracker.CancelSubscription(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":             "Subscription cancelled",
		"plan":                acc.Plan,
		"autoRenew":           acc.AutoRenew,
		"subscriptionEndDate": acc.SubscriptionEnd,
	})
}
