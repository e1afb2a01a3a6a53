// Package app provides public health and authenticated account endpoints.
package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the plan and remaining quota of the authenticated account.
func (h *Handlers) Me(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	acc, err := h.Manager.Account(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	var remaining any = acc.RemainingQuota()
	if acc.QuotaUnlimited {
		remaining = "unlimited"
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                    acc.ID,
		"email":                 acc.Email,
		"plan":                  acc.Plan,
		"jobPostQuota":          remaining,
		"autoRenew":             acc.AutoRenew,
		"subscriptionStartDate": acc.SubscriptionStart.UTC().Format(time.RFC3339),
		"subscriptionEndDate":   acc.SubscriptionEnd.UTC().Format(time.RFC3339),
		"active":                acc.SubscriptionEnd.After(time.Now()),
		"unlimited":             acc.QuotaUnlimited,
	})
}

// ListPlans returns the plan catalog with both price points.
func (h *Handlers) ListPlans(c *gin.Context) {
	plans := h.Catalog.Plans()
	out := make([]gin.H, 0, len(plans))
	for _, p := range plans {
		row := gin.H{
			"name":       p.Name,
			"cardPrice":  p.CardPrice,
			"localPrice": p.LocalPrice,
			"termMonths": p.TermMonths,
			"autoRenews": p.AutoRenews,
		}
		if p.Unlimited {
			row["quota"] = "unlimited"
		} else {
			row["quota"] = p.Quota
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}
