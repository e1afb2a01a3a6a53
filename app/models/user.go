// Package models defines accounts, plans, payments and job posts.
package models

import "time"

type Plan string

const (
	PlanFreeTrial  Plan = "Free_Trial"
	PlanBasic      Plan = "Basic"
	PlanPro        Plan = "Pro"
	PlanEnterprise Plan = "Enterprise"
)

// Unlimited is reported as the remaining quota for unbounded plans.
const Unlimited = -1

type Account struct {
	ID                   string    `db:"id" json:"id"`
	Email                string    `db:"email" json:"email"`
	Plan                 Plan      `db:"plan" json:"plan"`
	SubscriptionStart    time.Time `db:"subscription_start" json:"subscriptionStartDate"`
	SubscriptionEnd      time.Time `db:"subscription_end" json:"subscriptionEndDate"`
	JobPostQuota         int       `db:"job_post_quota" json:"jobPostQuota"`
	QuotaUnlimited       bool      `db:"quota_unlimited" json:"quotaUnlimited"`
	AutoRenew            bool      `db:"auto_renew" json:"autoRenew"`
	StripeCustomerID     string    `db:"stripe_customer_id" json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string    `db:"stripe_subscription_id" json:"-"`
	MpesaReferenceID     string    `db:"mpesa_reference_id" json:"-"`
	Version              int64     `db:"version" json:"-"`
	CreatedAt            time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time `db:"updated_at" json:"updatedAt"`
}

// RemainingQuota returns the job posts left, or Unlimited.
func (a Account) RemainingQuota() int {
	if a.QuotaUnlimited {
		return Unlimited
	}
	return a.JobPostQuota
}

// AccountPatch lists the account fields to overwrite. Nil fields are left alone.
// An empty string on an optional reference clears it.
type AccountPatch struct {
	Plan                 *Plan
	SubscriptionStart    *time.Time
	SubscriptionEnd      *time.Time
	JobPostQuota         *int
	QuotaUnlimited       *bool
	AutoRenew            *bool
	StripeCustomerID     *string
	StripeSubscriptionID *string
	MpesaReferenceID     *string
}

// Apply copies the set fields of p onto a.
func (p AccountPatch) Apply(a *Account) {
	if p.Plan != nil {
		a.Plan = *p.Plan
	}
	if p.SubscriptionStart != nil {
		a.SubscriptionStart = *p.SubscriptionStart
	}
	if p.SubscriptionEnd != nil {
		a.SubscriptionEnd = *p.SubscriptionEnd
	}
	if p.JobPostQuota != nil {
		a.JobPostQuota = *p.JobPostQuota
	}
	if p.QuotaUnlimited != nil {
		a.QuotaUnlimited = *p.QuotaUnlimited
	}
	if p.AutoRenew != nil {
		a.AutoRenew = *p.AutoRenew
	}
	if p.StripeCustomerID != nil {
		a.StripeCustomerID = *p.StripeCustomerID
	}
	if p.StripeSubscriptionID != nil {
		a.StripeSubscriptionID = *p.StripeSubscriptionID
	}
	if p.MpesaReferenceID != nil {
		a.MpesaReferenceID = *p.MpesaReferenceID
	}
}

// Empty reports whether the patch changes nothing.
func (p AccountPatch) Empty() bool {
	return p == AccountPatch{}
}
