package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"
)

// Intent metadata keys.
const (
	metaAccountID = "accountId"
	metaPlan      = "plan"
)

type PaymentIntentResult struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type ConfirmResult struct {
	Record    models.PaymentRecord
	Account   models.Account
	Duplicate bool
}

// CreatePaymentIntent opens a card payment of amount (major currency units)
// for the account. Nothing is persisted until the payment is confirmed.
func (t *Tracker) CreatePaymentIntent(ctx context.Context, accountID string, amount float64, plan models.Plan) (PaymentIntentResult, error) {
	const op = "create_payment_intent"

	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return PaymentIntentResult{}, validationError(op, "amount must be greater than zero")
	}
	cents := int64(math.Round(amount * 100))
	if cents <= 0 {
		return PaymentIntentResult{}, validationError(op, "amount must be at least 0.01")
	}
	if plan != "" {
		if _, err := t.catalog.Lookup(plan); err != nil {
			return PaymentIntentResult{}, validationError(op, err.Error())
		}
	}
	if _, err := t.store.FindAccount(ctx, accountID); err != nil {
		return PaymentIntentResult{}, storeError(op, err)
	}

	meta := map[string]string{metaAccountID: accountID}
	if plan != "" {
		meta[metaPlan] = string(plan)
	}
	intent, err := t.card.CreateIntent(ctx, cents, t.currency, meta)
	if err != nil {
		return PaymentIntentResult{}, upstreamError(op, err)
	}

	t.log.Info().Str("account_id", accountID).Str("intent_id", intent.ID).Int64("amount", cents).Msg("payment intent created")
	return PaymentIntentResult{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       cents,
		Currency:     t.currency,
	}, nil
}

// ConfirmPayment records a succeeded card payment exactly once. When the
// intent carries a plan the plan is applied in the same transaction.
// Confirming an already recorded intent returns Duplicate and changes nothing.
func (t *Tracker) ConfirmPayment(ctx context.Context, intentID string) (ConfirmResult, error) {
	const op = "confirm_payment"

	if strings.TrimSpace(intentID) == "" {
		return ConfirmResult{}, validationError(op, "payment intent id is required")
	}

	if rec, err := t.store.FindPaymentRecordByExternalID(ctx, intentID); err == nil {
		return ConfirmResult{Record: rec, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return ConfirmResult{}, storeError(op, err)
	}

	key := "intent:" + intentID
	if !t.claim(ctx, key) {
		return ConfirmResult{Duplicate: true}, nil
	}

	intent, err := t.card.RetrieveIntent(ctx, intentID)
	if err != nil {
		t.release(ctx, key)
		return ConfirmResult{}, upstreamError(op, err)
	}
	if intent.Status != IntentSucceeded {
		t.release(ctx, key)
		return ConfirmResult{}, validationError(op, fmt.Sprintf("payment intent %s is %s", intentID, intent.Status))
	}
	accountID := intent.Metadata[metaAccountID]
	if accountID == "" {
		t.release(ctx, key)
		return ConfirmResult{}, validationError(op, "payment intent has no account")
	}

	var spec *PlanSpec
	if plan := models.Plan(intent.Metadata[metaPlan]); plan != "" {
		s, err := t.catalog.Lookup(plan)
		if err != nil {
			t.release(ctx, key)
			return ConfirmResult{}, validationError(op, err.Error())
		}
		spec = &s
	}

	amount := intent.AmountReceived
	if amount == 0 {
		amount = intent.Amount
	}
	currency := intent.Currency
	if currency == "" {
		currency = t.currency
	}
	rec := models.PaymentRecord{
		Amount:     amount,
		Currency:   currency,
		Method:     models.PaymentMethodCard,
		Status:     models.PaymentStatusSucceeded,
		ExternalID: intent.ID,
	}
	if spec != nil {
		rec.Plan = spec.Name
	}

	acc, created, err := t.recordAndApply(ctx, op, func(tx store.Store) (models.Account, error) {
		return tx.FindAccountForUpdate(ctx, accountID)
	}, rec, spec, models.AccountPatch{})
	if err != nil {
		t.release(ctx, key)
		return ConfirmResult{}, err
	}
	if !created {
		return ConfirmResult{Record: rec, Account: acc, Duplicate: true}, nil
	}

	t.log.Info().Str("account_id", accountID).Str("intent_id", intent.ID).Str("plan", string(rec.Plan)).Msg("card payment recorded")
	rec.AccountID = accountID
	return ConfirmResult{Record: rec, Account: acc}, nil
}

// CreateSubscription starts a recurring card subscription for plan and
// applies the plan locally.
func (t *Tracker) CreateSubscription(ctx context.Context, accountID string, plan models.Plan, paymentMethodID string) (models.Account, ExternalSubscription, error) {
	const op = "create_subscription"

	priceID, err := t.catalog.PriceID(plan)
	if err != nil {
		return models.Account{}, ExternalSubscription{}, validationError(op, err.Error())
	}
	spec, _ := t.catalog.Lookup(plan)
	if strings.TrimSpace(paymentMethodID) == "" {
		return models.Account{}, ExternalSubscription{}, validationError(op, "payment method id is required")
	}

	acc, err := t.store.FindAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, ExternalSubscription{}, storeError(op, err)
	}
	customerID, err := t.ensureCustomer(ctx, acc)
	if err != nil {
		return models.Account{}, ExternalSubscription{}, err
	}
	if err := t.card.AttachDefaultPaymentMethod(ctx, customerID, paymentMethodID); err != nil {
		return models.Account{}, ExternalSubscription{}, upstreamError(op, err)
	}
	sub, err := t.card.CreateSubscription(ctx, customerID, priceID)
	if err != nil {
		return models.Account{}, ExternalSubscription{}, upstreamError(op, err)
	}

	var out models.Account
	err = withLockedAccount(ctx, t.store, op, accountID, func(tx store.Store, locked models.Account) error {
		patch := planPatch(spec, t.clock())
		patch.StripeSubscriptionID = &sub.ID
		updated, err := tx.UpdateAccount(ctx, locked.ID, locked.Version, patch)
		if err != nil {
			return storeError(op, err)
		}
		out = updated
		return nil
	})
	if err != nil {
		return models.Account{}, ExternalSubscription{}, err
	}

	t.log.Info().Str("account_id", accountID).Str("subscription_id", sub.ID).Str("plan", string(plan)).Msg("subscription created")
	return out, sub, nil
}

// ensureCustomer returns the processor customer for acc, creating it on first use.
func (t *Tracker) ensureCustomer(ctx context.Context, acc models.Account) (string, error) {
	const op = "create_customer"

	if acc.StripeCustomerID != "" {
		return acc.StripeCustomerID, nil
	}
	customerID, err := t.card.CreateCustomer(ctx, acc.Email, map[string]string{metaAccountID: acc.ID})
	if err != nil {
		return "", upstreamError(op, err)
	}

	err = withLockedAccount(ctx, t.store, op, acc.ID, func(tx store.Store, locked models.Account) error {
		if locked.StripeCustomerID != "" {
			customerID = locked.StripeCustomerID
			return nil
		}
		if _, err := tx.UpdateAccount(ctx, locked.ID, locked.Version, models.AccountPatch{StripeCustomerID: &customerID}); err != nil {
			return storeError(op, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return customerID, nil
}

// CancelSubscription cancels the recurring subscription, if any, and turns
// off renewal. The paid term runs to its end.
func (t *Tracker) CancelSubscription(ctx context.Context, accountID string) (models.Account, error) {
	const op = "cancel_subscription"

	acc, err := t.store.FindAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, storeError(op, err)
	}
	if acc.StripeSubscriptionID != "" {
		if err := t.card.CancelSubscription(ctx, acc.StripeSubscriptionID); err != nil {
			return models.Account{}, upstreamError(op, err)
		}
	}

	out, err := t.endRenewal(ctx, op, func(tx store.Store) (models.Account, error) {
		return tx.FindAccountForUpdate(ctx, accountID)
	})
	if err != nil {
		return models.Account{}, err
	}
	t.log.Info().Str("account_id", accountID).Str("subscription_id", acc.StripeSubscriptionID).Msg("subscription cancelled")
	return out, nil
}

// HandleSubscriptionEnded reacts to the processor ending a subscription on
// its side (cancellation from the dashboard, failed renewals).
func (t *Tracker) HandleSubscriptionEnded(ctx context.Context, customerID string) (models.Account, error) {
	const op = "subscription_ended"

	if customerID == "" {
		return models.Account{}, validationError(op, "customer id is required")
	}
	out, err := t.endRenewal(ctx, op, func(tx store.Store) (models.Account, error) {
		return tx.FindAccountByStripeCustomer(ctx, customerID)
	})
	if err != nil {
		return models.Account{}, err
	}
	t.log.Info().Str("account_id", out.ID).Str("customer_id", customerID).Msg("subscription ended by processor")
	return out, nil
}

func (t *Tracker) endRenewal(ctx context.Context, op string, find func(tx store.Store) (models.Account, error)) (models.Account, error) {
	var out models.Account
	err := t.store.WithTx(ctx, func(tx store.Store) error {
		acc, err := find(tx)
		if err != nil {
			return storeError(op, err)
		}
		off := false
		none := ""
		out, err = tx.UpdateAccount(ctx, acc.ID, acc.Version, models.AccountPatch{AutoRenew: &off, StripeSubscriptionID: &none})
		if err != nil {
			return storeError(op, err)
		}
		return nil
	})
	return out, err
}
