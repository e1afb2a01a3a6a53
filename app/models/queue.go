package models

import "time"

// PaymentEvent is published to the queue after a payment is recorded.
type PaymentEvent struct {
	Type       string        `json:"type"` // "payment.succeeded"
	AccountID  string        `json:"account_id"`
	Plan       Plan          `json:"plan,omitempty"`
	Amount     int64         `json:"amount"`
	Currency   string        `json:"currency"`
	Method     PaymentMethod `json:"method"`
	ExternalID string        `json:"external_id"`
	OccurredAt time.Time     `json:"occurred_at"`
}
