package billing

import (
	"context"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
)

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

// IntentSucceeded is the processor status of a captured card payment.
const IntentSucceeded = "succeeded"

// Intent is the processor's view of a single card payment attempt.
type Intent struct {
	ID             string
	ClientSecret   string
	Status         string
	Amount         int64 // cents
	AmountReceived int64
	Currency       string
	Method         string
	Metadata       map[string]string
}

type ExternalSubscription struct {
	ID     string
	Status string
}

// CardProcessor is the card payment provider (Stripe in production).
type CardProcessor interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error)
	RetrieveIntent(ctx context.Context, id string) (Intent, error)
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	AttachDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	CreateSubscription(ctx context.Context, customerID, priceID string) (ExternalSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// STKPushRequest is the signed envelope submitted to the M-Pesa express API.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// MobileMoneyGateway is the M-Pesa Daraja API.
type MobileMoneyGateway interface {
	AccessToken(ctx context.Context) (string, error)
	SubmitSTKPush(ctx context.Context, token string, req STKPushRequest) (STKPushResponse, error)
}

// Locker claims a key for a bounded time so concurrent duplicate deliveries
// are not processed side by side.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// EventPublisher announces recorded payments to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, evt models.PaymentEvent) error
}
