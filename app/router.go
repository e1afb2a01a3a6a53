// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/billing"
	"github.com/sethmwebi/medrin-jobs-backend/app/config"
	"github.com/sethmwebi/medrin-jobs-backend/app/logging"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"
	"github.com/sethmwebi/medrin-jobs-backend/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// Handlers holds the dependencies shared by every route.
type Handlers struct {
	Manager       *billing.Manager
	Tracker       *billing.Tracker
	Store         store.Store
	Catalog       *billing.Catalog
	WebhookSecret string
	Log           zerolog.Logger
}

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(h *Handlers, authCfg config.AuthConfig) (*gin.Engine, error) {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		MaxAge:       12 * time.Hour,
	}))
	router.Use(requestID())

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/plans", h.ListPlans)
	router.POST("/callback", h.MpesaCallback)
	router.POST("/api/stripe/webhook", h.StripeWebhook)

	verifier, err := auth.NewVerifierFromConfig(authCfg)
	if err != nil && !auth.AuthDisabled() {
		return nil, err
	}

	protected := router.Group("/")
	protected.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		OnAuthenticated: h.UpsertAccountFromClaims,
	}))
	protected.GET("/me", h.Me)
	protected.POST("/payment-intent", h.CreatePaymentIntent)
	protected.POST("/payment-success", h.PaymentSuccess)
	protected.POST("/create-subscription", h.CreateSubscription)
	protected.POST("/cancel-subscription", h.CancelSubscription)
	protected.POST("/pay", h.MpesaPay)
	protected.POST("/api/job", h.CreateJob)

	return router, nil
}

// requestID tags the request context with X-Request-ID, generating one if
// the caller did not send it.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, id := logging.WithRequestID(c.Request.Context(), c.GetHeader(requestIDHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
