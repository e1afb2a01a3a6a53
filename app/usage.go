// Package app enforces the job post quota when employers publish jobs.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createJobRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Company     string `json:"company"`
	Country     string `json:"country"`
	Category    string `json:"category"`
	Salary      *int64 `json:"salary"`
	Email       string `json:"email"`
	Contact     string `json:"contact"`
}

func (r createJobRequest) validate() string {
	for _, v := range []string{r.Title, r.Description, r.Country, r.Company, r.Email, r.Contact} {
		if strings.TrimSpace(v) == "" {
			return "All fields are required"
		}
	}
	if r.Salary == nil || *r.Salary == 0 {
		return "All fields are required"
	}
	if *r.Salary < 0 {
		return "Salary cannot be negative"
	}
	if strings.HasPrefix(strings.TrimSpace(r.Contact), "-") {
		return "Contact cannot be negative"
	}
	return ""
}

// CreateJob publishes a job post and takes one unit of the account's quota
// in the same transaction.
func (h *Handlers) CreateJob(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	job := models.Job{
		ID:          uuid.NewString(),
		AccountID:   id,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Company:     strings.TrimSpace(req.Company),
		Country:     strings.TrimSpace(req.Country),
		Category:    strings.TrimSpace(req.Category),
		Salary:      *req.Salary,
		Email:       strings.TrimSpace(req.Email),
		Contact:     strings.TrimSpace(req.Contact),
		CreatedAt:   time.Now().UTC(),
	}

	remaining, err := h.Manager.ConsumeQuota(c.Request.Context(), id, func(ctx context.Context, tx store.Store) error {
		return tx.CreateJob(ctx, job)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	var quota any = remaining
	if remaining == models.Unlimited {
		quota = "unlimited"
	}
	c.JSON(http.StatusCreated, gin.H{
		"job":          job,
		"jobPostQuota": quota,
	})
}
