package billing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(s store.Store) *Manager {
	m := NewManager(s, DefaultCatalog(), zerolog.Nop())
	m.SetClock(fixedClock)
	return m
}

func TestApplyPlanResetsTermAndQuota(t *testing.T) {
	catalog := DefaultCatalog()
	for _, spec := range catalog.Plans() {
		t.Run(string(spec.Name), func(t *testing.T) {
			s := store.NewMemory()
			seedAccount(t, s, freeTrialAccount("acc-1"), models.AccountPatch{})
			m := newTestManager(s)

			acc, err := m.ApplyPlan(context.Background(), "acc-1", spec.Name)
			require.NoError(t, err)

			assert.Equal(t, spec.Name, acc.Plan)
			assert.Equal(t, fixedNow, acc.SubscriptionStart)
			assert.Equal(t, acc.SubscriptionStart.AddDate(0, spec.TermMonths, 0), acc.SubscriptionEnd)
			assert.Equal(t, spec.Unlimited, acc.QuotaUnlimited)
			if spec.Unlimited {
				assert.Equal(t, models.Unlimited, acc.RemainingQuota())
			} else {
				assert.Equal(t, spec.Quota, acc.JobPostQuota)
			}
			assert.Equal(t, spec.AutoRenews, acc.AutoRenew)
		})
	}
}

func TestApplyPlanIsDeterministic(t *testing.T) {
	s := store.NewMemory()
	seedAccount(t, s, freeTrialAccount("acc-1"), models.AccountPatch{})
	m := newTestManager(s)

	first, err := m.ApplyPlan(context.Background(), "acc-1", models.PlanPro)
	require.NoError(t, err)
	second, err := m.ApplyPlan(context.Background(), "acc-1", models.PlanPro)
	require.NoError(t, err)

	assert.Equal(t, first.SubscriptionEnd, second.SubscriptionEnd)
	assert.Equal(t, first.JobPostQuota, second.JobPostQuota)
}

func TestApplyPlanErrors(t *testing.T) {
	s := store.NewMemory()
	seeded := seedAccount(t, s, freeTrialAccount("acc-1"), models.AccountPatch{})
	m := newTestManager(s)

	_, err := m.ApplyPlan(context.Background(), "acc-1", models.Plan("Platinum"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = m.ApplyPlan(context.Background(), "missing", models.PlanBasic)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.FindAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, seeded, got)
}

func TestDecrementQuota(t *testing.T) {
	s := store.NewMemory()
	acc := freeTrialAccount("acc-1")
	acc.JobPostQuota = 2
	seedAccount(t, s, acc, models.AccountPatch{})
	m := newTestManager(s)
	ctx := context.Background()

	left, err := m.DecrementQuota(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	left, err = m.DecrementQuota(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	_, err = m.DecrementQuota(ctx, "acc-1")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, KindQuotaExceeded, KindOf(err))

	got, err := s.FindAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.JobPostQuota)
}

func TestDecrementQuotaConcurrent(t *testing.T) {
	s := store.NewMemory()
	acc := freeTrialAccount("acc-1")
	acc.JobPostQuota = 1
	seedAccount(t, s, acc, models.AccountPatch{})
	m := newTestManager(s)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		exceeded int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.DecrementQuota(context.Background(), "acc-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrQuotaExceeded):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, exceeded)
	got, err := s.FindAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.JobPostQuota)
}

func TestDecrementQuotaUnlimited(t *testing.T) {
	s := store.NewMemory()
	seedAccount(t, s, freeTrialAccount("acc-1"), models.AccountPatch{})
	m := newTestManager(s)
	_, err := m.ApplyPlan(context.Background(), "acc-1", models.PlanEnterprise)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		left, err := m.DecrementQuota(context.Background(), "acc-1")
		require.NoError(t, err)
		assert.Equal(t, models.Unlimited, left)
	}
}

func TestConsumeQuotaRollsBackOnPersistError(t *testing.T) {
	s := store.NewMemory()
	seedAccount(t, s, freeTrialAccount("acc-1"), models.AccountPatch{})
	m := newTestManager(s)

	_, err := m.ConsumeQuota(context.Background(), "acc-1", func(ctx context.Context, tx store.Store) error {
		return errors.New("insert job: connection reset")
	})
	assert.ErrorIs(t, err, ErrInternal)

	got, err := s.FindAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.JobPostQuota)

	left, err := m.ConsumeQuota(context.Background(), "acc-1", func(ctx context.Context, tx store.Store) error {
		return tx.CreateJob(ctx, models.Job{ID: "job-1", AccountID: "acc-1", Title: "Backend engineer"})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, left)
	assert.Len(t, s.Jobs(), 1)
}

func TestDisableRenewal(t *testing.T) {
	s := store.NewMemory()
	seedAccount(t, s, freeTrialAccount("acc-1"), models.AccountPatch{})
	m := newTestManager(s)
	_, err := m.ApplyPlan(context.Background(), "acc-1", models.PlanBasic)
	require.NoError(t, err)

	acc, err := m.DisableRenewal(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.False(t, acc.AutoRenew)
	assert.Equal(t, 5, acc.JobPostQuota)
}

func TestEnsureAccountProvisionsTrialOnce(t *testing.T) {
	s := store.NewMemory()
	m := newTestManager(s)
	ctx := context.Background()

	acc, created, err := m.EnsureAccount(ctx, "acc-new", "hr@acme.example")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.PlanFreeTrial, acc.Plan)
	assert.Equal(t, 3, acc.JobPostQuota)
	assert.False(t, acc.AutoRenew)
	assert.Equal(t, fixedNow.AddDate(0, 1, 0), acc.SubscriptionEnd)

	_, err = m.ApplyPlan(ctx, "acc-new", models.PlanPro)
	require.NoError(t, err)

	acc, created, err = m.EnsureAccount(ctx, "acc-new", "hr@acme.example")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.PlanPro, acc.Plan)

	_, _, err = m.EnsureAccount(ctx, "", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAccountNotFound(t *testing.T) {
	m := newTestManager(store.NewMemory())
	_, err := m.Account(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
