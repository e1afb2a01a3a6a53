package models

import "time"

type PaymentMethod string

const (
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodMobileMoney PaymentMethod = "mobile-money"
)

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
)

// PaymentRecord is written once per confirmed payment and never updated.
type PaymentRecord struct {
	ID         string        `db:"id" json:"id"`
	AccountID  string        `db:"account_id" json:"accountId"`
	Plan       Plan          `db:"plan" json:"plan,omitempty"`
	Amount     int64         `db:"amount" json:"amount"`
	Currency   string        `db:"currency" json:"currency"`
	Method     PaymentMethod `db:"method" json:"method"`
	Status     PaymentStatus `db:"status" json:"status"`
	ExternalID string        `db:"external_id" json:"externalId"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
}
