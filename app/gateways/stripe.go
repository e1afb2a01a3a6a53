// Package gateways adapts the external payment providers to billing's ports.
package gateways

import (
	"context"

	"github.com/sethmwebi/medrin-jobs-backend/app/billing"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

var (
	_ billing.CardProcessor      = (*Stripe)(nil)
	_ billing.MobileMoneyGateway = (*Mpesa)(nil)
)

// Stripe implements billing.CardProcessor.
type Stripe struct {
	sc *client.API
}

// NewStripe builds a client for key. backends may be nil; tests point it
// at a local server.
func NewStripe(key string, backends *stripe.Backends) *Stripe {
	return &Stripe{sc: client.New(key, backends)}
}

func (s *Stripe) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (billing.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.sc.PaymentIntents.New(params)
	if err != nil {
		return billing.Intent{}, err
	}
	return toIntent(pi), nil
}

func (s *Stripe) RetrieveIntent(ctx context.Context, id string) (billing.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.sc.PaymentIntents.Get(id, params)
	if err != nil {
		return billing.Intent{}, err
	}
	return toIntent(pi), nil
}

func toIntent(pi *stripe.PaymentIntent) billing.Intent {
	in := billing.Intent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         string(pi.Status),
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Metadata:       pi.Metadata,
	}
	if len(pi.PaymentMethodTypes) > 0 {
		in.Method = pi.PaymentMethodTypes[0]
	}
	return in
}

func (s *Stripe) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{Metadata: metadata}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx

	cust, err := s.sc.Customers.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

// AttachDefaultPaymentMethod attaches the method to the customer and makes
// it the default for subscription invoices.
func (s *Stripe) AttachDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	attach.Context = ctx
	if _, err := s.sc.PaymentMethods.Attach(paymentMethodID, attach); err != nil {
		return err
	}

	update := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	update.Context = ctx
	_, err := s.sc.Customers.Update(customerID, update)
	return err
}

func (s *Stripe) CreateSubscription(ctx context.Context, customerID, priceID string) (billing.ExternalSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := s.sc.Subscriptions.New(params)
	if err != nil {
		return billing.ExternalSubscription{}, err
	}
	return billing.ExternalSubscription{ID: sub.ID, Status: string(sub.Status)}, nil
}

func (s *Stripe) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := s.sc.Subscriptions.Cancel(subscriptionID, params)
	return err
}
