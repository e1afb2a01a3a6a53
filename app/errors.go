package app

import (
	"net/http"

	"github.com/sethmwebi/medrin-jobs-backend/app/billing"
	"github.com/sethmwebi/medrin-jobs-backend/app/logging"
	"github.com/sethmwebi/medrin-jobs-backend/auth"

	"github.com/gin-gonic/gin"
)

func statusFor(kind billing.Kind) int {
	switch kind {
	case billing.KindValidation:
		return http.StatusBadRequest
	case billing.KindNotFound:
		return http.StatusNotFound
	case billing.KindQuotaExceeded:
		return http.StatusPaymentRequired
	case billing.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": message} with the status of its kind.
func respondError(c *gin.Context, err error) {
	kind := billing.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		l := logging.FromContext(c.Request.Context())
		l.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": billing.PublicMessage(err)})
}

// accountID returns the authenticated account id, writing 401 when absent.
func accountID(c *gin.Context) (string, bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return "", false
	}
	return claims.Subject, true
}
