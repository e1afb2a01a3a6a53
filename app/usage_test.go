package app

import (
	"context"
	"net/http"
	"testing"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validJob() gin.H {
	return gin.H{
		"title":       "Backend Engineer",
		"description": "Payments and billing",
		"company":     "Acme",
		"country":     "Kenya",
		"category":    "Engineering",
		"salary":      250000,
		"email":       "hr@acme.example",
		"contact":     "0712345678",
	}
}

func TestCreateJobConsumesQuota(t *testing.T) {
	env := newTestEnv(t)

	for want := 2; want >= 0; want-- {
		resp := env.do(t, http.MethodPost, "/api/job", "acct-1", validJob())
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
		assert.EqualValues(t, want, decode(t, resp)["jobPostQuota"])
	}

	resp := env.do(t, http.MethodPost, "/api/job", "acct-1", validJob())
	assert.Equal(t, http.StatusPaymentRequired, resp.Code)
	assert.Len(t, env.store.Jobs(), 3)
}

func TestCreateJobUnlimited(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/me", "acct-1", nil)
	_, err := env.manager.ApplyPlan(context.Background(), "acct-1", models.PlanEnterprise)
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/api/job", "acct-1", validJob())
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "unlimited", decode(t, resp)["jobPostQuota"])
}

func TestCreateJobValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(gin.H)
		want   string
	}{
		{"missing title", func(b gin.H) { delete(b, "title") }, "All fields are required"},
		{"blank company", func(b gin.H) { b["company"] = "  " }, "All fields are required"},
		{"zero salary", func(b gin.H) { b["salary"] = 0 }, "All fields are required"},
		{"negative salary", func(b gin.H) { b["salary"] = -5 }, "Salary cannot be negative"},
		{"negative contact", func(b gin.H) { b["contact"] = "-712345678" }, "Contact cannot be negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			body := validJob()
			tc.mutate(body)

			resp := env.do(t, http.MethodPost, "/api/job", "acct-1", body)
			require.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, tc.want, decode(t, resp)["error"])

			acc, err := env.store.FindAccount(context.Background(), "acct-1")
			require.NoError(t, err)
			assert.Equal(t, 3, acc.JobPostQuota)
		})
	}
}
