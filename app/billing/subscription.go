package billing

import (
	"context"
	"errors"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"

	"github.com/rs/zerolog"
)

// conflictRetries bounds how often a versioned update is retried when a
// store without row locks reports a concurrent write.
const conflictRetries = 3

// Manager owns plan assignment and job post quota.
type Manager struct {
	store   store.Store
	catalog *Catalog
	clock   Clock
	log     zerolog.Logger
}

func NewManager(s store.Store, catalog *Catalog, log zerolog.Logger) *Manager {
	return &Manager{
		store:   s,
		catalog: catalog,
		clock:   time.Now,
		log:     log.With().Str("component", "subscriptions").Logger(),
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(c Clock) {
	m.clock = c
}

// EnsureAccount creates the account on first sight with the trial plan.
// Existing accounts are returned unchanged.
func (m *Manager) EnsureAccount(ctx context.Context, accountID, email string) (models.Account, bool, error) {
	const op = "ensure_account"
	if accountID == "" {
		return models.Account{}, false, validationError(op, "account id is required")
	}

	spec, err := m.catalog.Lookup(models.PlanFreeTrial)
	if err != nil {
		return models.Account{}, false, internalError(op, err)
	}
	acc := models.Account{ID: accountID, Email: email}
	planPatch(spec, m.clock()).Apply(&acc)

	created, err := m.store.CreateAccount(ctx, acc)
	if err != nil {
		return models.Account{}, false, storeError(op, err)
	}
	if created {
		m.log.Info().Str("account_id", accountID).Msg("account provisioned on trial")
	}
	out, err := m.store.FindAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, false, storeError(op, err)
	}
	return out, created, nil
}

// Account returns the stored account.
func (m *Manager) Account(ctx context.Context, accountID string) (models.Account, error) {
	acc, err := m.store.FindAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, storeError("get_account", err)
	}
	return acc, nil
}

// ApplyPlan sets the account's plan, starts a fresh term at now and resets
// its quota to the plan allowance. Unused quota from the previous term is
// discarded.
func (m *Manager) ApplyPlan(ctx context.Context, accountID string, plan models.Plan) (models.Account, error) {
	const op = "apply_plan"

	spec, err := m.catalog.Lookup(plan)
	if err != nil {
		return models.Account{}, validationError(op, err.Error())
	}

	var out models.Account
	err = m.withAccount(ctx, op, accountID, func(tx store.Store, acc models.Account) error {
		updated, err := ApplyPlanTx(ctx, tx, acc, spec, m.clock())
		out = updated
		return err
	})
	if err != nil {
		return models.Account{}, err
	}

	m.log.Info().Str("account_id", accountID).Str("plan", string(plan)).
		Time("subscription_end", out.SubscriptionEnd).Msg("plan applied")
	return out, nil
}

// ApplyPlanTx writes spec onto acc inside an open transaction. acc must
// have been read with FindAccountForUpdate on tx.
func ApplyPlanTx(ctx context.Context, tx store.Store, acc models.Account, spec PlanSpec, now time.Time) (models.Account, error) {
	updated, err := tx.UpdateAccount(ctx, acc.ID, acc.Version, planPatch(spec, now))
	if err != nil {
		return models.Account{}, storeError("apply_plan", err)
	}
	return updated, nil
}

func planPatch(spec PlanSpec, now time.Time) models.AccountPatch {
	plan := spec.Name
	start := now
	end := now.AddDate(0, spec.TermMonths, 0)
	quota := spec.Quota
	if spec.Unlimited {
		quota = 0
	}
	unlimited := spec.Unlimited
	autoRenew := spec.AutoRenews
	return models.AccountPatch{
		Plan:              &plan,
		SubscriptionStart: &start,
		SubscriptionEnd:   &end,
		JobPostQuota:      &quota,
		QuotaUnlimited:    &unlimited,
		AutoRenew:         &autoRenew,
	}
}

// DecrementQuota takes one job post from the account and returns what is
// left. Unlimited accounts are not decremented and report models.Unlimited.
func (m *Manager) DecrementQuota(ctx context.Context, accountID string) (int, error) {
	return m.ConsumeQuota(ctx, accountID, nil)
}

// ConsumeQuota decrements the quota and runs persist in the same
// transaction. If persist fails the decrement is rolled back.
func (m *Manager) ConsumeQuota(ctx context.Context, accountID string, persist func(ctx context.Context, tx store.Store) error) (int, error) {
	const op = "decrement_quota"

	remaining := 0
	err := m.withAccount(ctx, op, accountID, func(tx store.Store, acc models.Account) error {
		if acc.QuotaUnlimited {
			remaining = models.Unlimited
		} else {
			if acc.JobPostQuota <= 0 {
				quotaRejections.Inc()
				return &Error{Kind: KindQuotaExceeded, Op: op, Message: "job post quota exhausted, upgrade your plan to post more jobs"}
			}
			quota := acc.JobPostQuota - 1
			if _, err := tx.UpdateAccount(ctx, acc.ID, acc.Version, models.AccountPatch{JobPostQuota: &quota}); err != nil {
				return storeError(op, err)
			}
			remaining = quota
		}
		if persist == nil {
			return nil
		}
		if err := persist(ctx, tx); err != nil {
			return internalError(op, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// DisableRenewal stops the account from renewing at the end of its term.
// The current term and quota are left untouched.
func (m *Manager) DisableRenewal(ctx context.Context, accountID string) (models.Account, error) {
	const op = "disable_renewal"

	var out models.Account
	err := m.withAccount(ctx, op, accountID, func(tx store.Store, acc models.Account) error {
		off := false
		updated, err := tx.UpdateAccount(ctx, acc.ID, acc.Version, models.AccountPatch{AutoRenew: &off})
		if err != nil {
			return storeError(op, err)
		}
		out = updated
		return nil
	})
	return out, err
}

// withAccount locks the account for the duration of fn. A version conflict
// restarts the whole transaction.
func (m *Manager) withAccount(ctx context.Context, op, accountID string, fn func(tx store.Store, acc models.Account) error) error {
	return withLockedAccount(ctx, m.store, op, accountID, fn)
}

func withLockedAccount(ctx context.Context, s store.Store, op, accountID string, fn func(tx store.Store, acc models.Account) error) error {
	if accountID == "" {
		return validationError(op, "account id is required")
	}

	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = s.WithTx(ctx, func(tx store.Store) error {
			acc, err := tx.FindAccountForUpdate(ctx, accountID)
			if err != nil {
				return storeError(op, err)
			}
			return fn(tx, acc)
		})
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
	}
	return internalError(op, err)
}

// storeError maps persistence failures onto billing kinds. The store error
// stays in the chain so callers can still match store.ErrConflict.
func storeError(op string, err error) error {
	var be *Error
	switch {
	case errors.As(err, &be):
		return err
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindNotFound, Op: op, Message: "account not found", Err: err}
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}
