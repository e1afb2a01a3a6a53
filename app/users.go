// Package app provisions accounts for authenticated employers.
package app

import (
	"github.com/sethmwebi/medrin-jobs-backend/auth"

	"github.com/gin-gonic/gin"
)

// UpsertAccountFromClaims creates the account on the trial plan if it does
// not already exist. The token subject is the account id.
func (h *Handlers) UpsertAccountFromClaims(c *gin.Context, claims *auth.Claims) error {
	if claims == nil || claims.Subject == "" {
		return nil
	}
	_, _, err := h.Manager.EnsureAccount(c.Request.Context(), claims.Subject, claims.Email())
	return err
}
