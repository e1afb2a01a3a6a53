package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type fakeCard struct {
	createIntent       func(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error)
	retrieveIntent     func(ctx context.Context, id string) (Intent, error)
	createCustomer     func(ctx context.Context, email string, metadata map[string]string) (string, error)
	attachMethod       func(ctx context.Context, customerID, paymentMethodID string) error
	createSubscription func(ctx context.Context, customerID, priceID string) (ExternalSubscription, error)
	cancelSubscription func(ctx context.Context, subscriptionID string) error

	mu        sync.Mutex
	retrieved int
	cancelled []string
}

func (f *fakeCard) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error) {
	return f.createIntent(ctx, amount, currency, metadata)
}

func (f *fakeCard) RetrieveIntent(ctx context.Context, id string) (Intent, error) {
	f.mu.Lock()
	f.retrieved++
	f.mu.Unlock()
	return f.retrieveIntent(ctx, id)
}

func (f *fakeCard) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	return f.createCustomer(ctx, email, metadata)
}

func (f *fakeCard) AttachDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return f.attachMethod(ctx, customerID, paymentMethodID)
}

func (f *fakeCard) CreateSubscription(ctx context.Context, customerID, priceID string) (ExternalSubscription, error) {
	return f.createSubscription(ctx, customerID, priceID)
}

func (f *fakeCard) CancelSubscription(ctx context.Context, subscriptionID string) error {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, subscriptionID)
	f.mu.Unlock()
	if f.cancelSubscription == nil {
		return nil
	}
	return f.cancelSubscription(ctx, subscriptionID)
}

type fakeMobile struct {
	token  func(ctx context.Context) (string, error)
	submit func(ctx context.Context, token string, req STKPushRequest) (STKPushResponse, error)
}

func (f *fakeMobile) AccessToken(ctx context.Context) (string, error) {
	return f.token(ctx)
}

func (f *fakeMobile) SubmitSTKPush(ctx context.Context, token string, req STKPushRequest) (STKPushResponse, error) {
	return f.submit(ctx, token, req)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.PaymentEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, evt models.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) Acquire(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// seedAccount creates an account and then applies patch, since references
// cannot be set on create.
func seedAccount(t *testing.T, s *store.Memory, acc models.Account, patch models.AccountPatch) models.Account {
	t.Helper()
	ctx := context.Background()
	if acc.Email == "" {
		acc.Email = acc.ID + "@example.com"
	}
	_, err := s.CreateAccount(ctx, acc)
	require.NoError(t, err)
	got, err := s.FindAccount(ctx, acc.ID)
	require.NoError(t, err)
	if patch.Empty() {
		return got
	}
	got, err = s.UpdateAccount(ctx, acc.ID, got.Version, patch)
	require.NoError(t, err)
	return got
}

func freeTrialAccount(id string) models.Account {
	return models.Account{
		ID:                id,
		Plan:              models.PlanFreeTrial,
		SubscriptionStart: fixedNow.AddDate(0, 0, -10),
		SubscriptionEnd:   fixedNow.AddDate(0, 0, 20),
		JobPostQuota:      3,
	}
}

func newTestTracker(s store.Store, card CardProcessor, mobile MobileMoneyGateway) *Tracker {
	tr := NewTracker(TrackerConfig{
		Store:   s,
		Catalog: DefaultCatalog(),
		Card:    card,
		Mobile:  mobile,
		Mpesa: MpesaSettings{
			ShortCode:   "174379",
			PassKey:     "passkey",
			CallbackURL: "https://api.example.com/callback",
		},
		Logger: zerolog.Nop(),
	})
	tr.SetClock(fixedClock)
	return tr
}

func strPtr(s string) *string { return &s }
