package billing

import (
	"context"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MpesaSettings identify the merchant on STK push requests.
type MpesaSettings struct {
	ShortCode       string
	PassKey         string
	CallbackURL     string
	TransactionType string // defaults to CustomerPayBillOnline
}

type TrackerConfig struct {
	Store    store.Store
	Catalog  *Catalog
	Card     CardProcessor
	Mobile   MobileMoneyGateway
	Mpesa    MpesaSettings
	Currency string // card currency, defaults to usd

	// Optional.
	Guard  Locker
	Events EventPublisher
	Logger zerolog.Logger
}

// Tracker turns confirmed payments from either rail into plan changes.
type Tracker struct {
	store    store.Store
	catalog  *Catalog
	card     CardProcessor
	mobile   MobileMoneyGateway
	mpesa    MpesaSettings
	currency string
	guard    Locker
	events   EventPublisher
	clock    Clock
	newID    func() string
	log      zerolog.Logger
}

func NewTracker(cfg TrackerConfig) *Tracker {
	currency := cfg.Currency
	if currency == "" {
		currency = "usd"
	}
	mpesa := cfg.Mpesa
	if mpesa.TransactionType == "" {
		mpesa.TransactionType = "CustomerPayBillOnline"
	}
	return &Tracker{
		store:    cfg.Store,
		catalog:  cfg.Catalog,
		card:     cfg.Card,
		mobile:   cfg.Mobile,
		mpesa:    mpesa,
		currency: currency,
		guard:    cfg.Guard,
		events:   cfg.Events,
		clock:    time.Now,
		newID:    uuid.NewString,
		log:      cfg.Logger.With().Str("component", "payments").Logger(),
	}
}

// SetClock replaces the time source.
func (t *Tracker) SetClock(c Clock) {
	t.clock = c
}

// claim takes the dedupe guard for key. Without a guard every caller wins.
func (t *Tracker) claim(ctx context.Context, key string) bool {
	if t.guard == nil {
		return true
	}
	ok, err := t.guard.Acquire(ctx, key)
	if err != nil {
		// The payment record's unique key still protects us.
		t.log.Warn().Err(err).Str("key", key).Msg("dedupe guard unavailable")
		return true
	}
	return ok
}

func (t *Tracker) release(ctx context.Context, key string) {
	if t.guard == nil {
		return
	}
	if err := t.guard.Release(ctx, key); err != nil {
		t.log.Warn().Err(err).Str("key", key).Msg("release dedupe guard")
	}
}

// recordAndApply stores rec and, when spec is set, applies the plan, all
// under the account row lock. find runs first and may fill in *spec.
// created is false when rec was already stored.
func (t *Tracker) recordAndApply(ctx context.Context, op string, find func(tx store.Store) (models.Account, error), rec models.PaymentRecord, spec *PlanSpec, extra models.AccountPatch) (acc models.Account, created bool, err error) {
	err = t.store.WithTx(ctx, func(tx store.Store) error {
		locked, err := find(tx)
		if err != nil {
			return storeError(op, err)
		}
		rec.AccountID = locked.ID
		if rec.ID == "" {
			rec.ID = t.newID()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = t.clock()
		}
		if spec != nil && rec.Plan == "" {
			rec.Plan = spec.Name
		}
		created, err = tx.CreatePaymentRecord(ctx, rec)
		if err != nil {
			return storeError(op, err)
		}
		if !created {
			acc = locked
			return nil
		}

		patch := extra
		if spec != nil {
			full := planPatch(*spec, t.clock())
			full.MpesaReferenceID = extra.MpesaReferenceID
			full.StripeSubscriptionID = extra.StripeSubscriptionID
			patch = full
		}
		if patch.Empty() {
			acc = locked
			return nil
		}
		acc, err = tx.UpdateAccount(ctx, locked.ID, locked.Version, patch)
		if err != nil {
			return storeError(op, err)
		}
		return nil
	})
	if err != nil {
		return models.Account{}, false, err
	}
	if created {
		paymentsRecorded.WithLabelValues(string(rec.Method)).Inc()
		t.publish(ctx, rec)
	}
	return acc, created, nil
}

func (t *Tracker) publish(ctx context.Context, rec models.PaymentRecord) {
	if t.events == nil {
		return
	}
	evt := models.PaymentEvent{
		Type:       "payment.succeeded",
		AccountID:  rec.AccountID,
		Plan:       rec.Plan,
		Amount:     rec.Amount,
		Currency:   rec.Currency,
		Method:     rec.Method,
		ExternalID: rec.ExternalID,
		OccurredAt: rec.CreatedAt,
	}
	if err := t.events.Publish(ctx, evt); err != nil {
		t.log.Error().Err(err).Str("external_id", rec.ExternalID).Msg("publish payment event")
	}
}
