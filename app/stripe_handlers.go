package app

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sethmwebi/medrin-jobs-backend/app/billing"
	"github.com/sethmwebi/medrin-jobs-backend/app/logging"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const maxBodyBytes = int64(65536)

// StripeWebhook reconciles card payments and subscription cancellations
// pushed by Stripe.
func (h *Handlers) StripeWebhook(c *gin.Context) {
	l := logging.FromContext(c.Request.Context())

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		l.Warn().Err(err).Msg("stripe webhook read failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if h.WebhookSecret == "" {
		l.Error().Msg("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		h.WebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		l.Warn().Err(err).Msg("stripe webhook signature failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil || pi.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment intent payload"})
			return
		}
		_, err = h.Tracker.ConfirmPayment(c.Request.Context(), pi.ID)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
			return
		}
		if sub.Customer == nil || sub.Customer.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing customer id"})
			return
		}
		_, err = h.Tracker.HandleSubscriptionEnded(c.Request.Context(), sub.Customer.ID)
	default:
		// Intentionally ignore unhandled events.
	}

	if err != nil {
		switch billing.KindOf(err) {
		case billing.KindUpstream, billing.KindInternal:
			// Stripe retries non-2xx deliveries.
			respondError(c, err)
			return
		default:
			l.Warn().Err(err).Str("event", string(event.Type)).Msg("stripe webhook not applied")
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
