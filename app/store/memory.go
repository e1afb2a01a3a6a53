package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
)

// Memory is an in-process Store. Transactions are serialized and commit by
// swapping in a copy of the data, so a failed transaction leaves no trace.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	accounts map[string]models.Account
	payments map[string]models.PaymentRecord // by external id
	jobs     map[string]models.Job
}

func NewMemory() *Memory {
	return &Memory{data: &memData{
		accounts: map[string]models.Account{},
		payments: map[string]models.PaymentRecord{},
		jobs:     map[string]models.Job{},
	}}
}

func (d *memData) clone() *memData {
	out := &memData{
		accounts: make(map[string]models.Account, len(d.accounts)),
		payments: make(map[string]models.PaymentRecord, len(d.payments)),
		jobs:     make(map[string]models.Job, len(d.jobs)),
	}
	for k, v := range d.accounts {
		out.accounts[k] = v
	}
	for k, v := range d.payments {
		out.payments[k] = v
	}
	for k, v := range d.jobs {
		out.jobs[k] = v
	}
	return out
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.data.clone()
	if err := fn(&memTx{data: working}); err != nil {
		return err
	}
	m.data = working
	return nil
}

func (m *Memory) run(fn func(t *memTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{data: m.data})
}

func (m *Memory) CreateAccount(ctx context.Context, acc models.Account) (created bool, err error) {
	err = m.run(func(t *memTx) error {
		created, err = t.CreateAccount(ctx, acc)
		return err
	})
	return created, err
}

func (m *Memory) FindAccount(ctx context.Context, id string) (acc models.Account, err error) {
	err = m.run(func(t *memTx) error {
		acc, err = t.FindAccount(ctx, id)
		return err
	})
	return acc, err
}

func (m *Memory) FindAccountForUpdate(ctx context.Context, id string) (models.Account, error) {
	return m.FindAccount(ctx, id)
}

func (m *Memory) FindAccountByMpesaReference(ctx context.Context, ref string) (acc models.Account, err error) {
	err = m.run(func(t *memTx) error {
		acc, err = t.FindAccountByMpesaReference(ctx, ref)
		return err
	})
	return acc, err
}

func (m *Memory) FindAccountByStripeCustomer(ctx context.Context, customerID string) (acc models.Account, err error) {
	err = m.run(func(t *memTx) error {
		acc, err = t.FindAccountByStripeCustomer(ctx, customerID)
		return err
	})
	return acc, err
}

func (m *Memory) UpdateAccount(ctx context.Context, id string, expectedVersion int64, patch models.AccountPatch) (acc models.Account, err error) {
	err = m.run(func(t *memTx) error {
		acc, err = t.UpdateAccount(ctx, id, expectedVersion, patch)
		return err
	})
	return acc, err
}

func (m *Memory) FindAccountsDueForRenewal(ctx context.Context, now time.Time) (out []models.Account, err error) {
	err = m.run(func(t *memTx) error {
		out, err = t.FindAccountsDueForRenewal(ctx, now)
		return err
	})
	return out, err
}

func (m *Memory) CreatePaymentRecord(ctx context.Context, rec models.PaymentRecord) (created bool, err error) {
	err = m.run(func(t *memTx) error {
		created, err = t.CreatePaymentRecord(ctx, rec)
		return err
	})
	return created, err
}

func (m *Memory) FindPaymentRecordByExternalID(ctx context.Context, externalID string) (rec models.PaymentRecord, err error) {
	err = m.run(func(t *memTx) error {
		rec, err = t.FindPaymentRecordByExternalID(ctx, externalID)
		return err
	})
	return rec, err
}

func (m *Memory) CreateJob(ctx context.Context, job models.Job) error {
	return m.run(func(t *memTx) error {
		return t.CreateJob(ctx, job)
	})
}

// PaymentRecords returns every stored record. Intended for tests and tooling.
func (m *Memory) PaymentRecords() []models.PaymentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PaymentRecord, 0, len(m.data.payments))
	for _, rec := range m.data.payments {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

// Jobs returns every stored job post.
func (m *Memory) Jobs() []models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Job, 0, len(m.data.jobs))
	for _, job := range m.data.jobs {
		out = append(out, job)
	}
	return out
}

// memTx operates on data owned by the caller; it never locks.
type memTx struct {
	data *memData
}

func (t *memTx) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memTx) CreateAccount(ctx context.Context, acc models.Account) (bool, error) {
	if _, ok := t.data.accounts[acc.ID]; ok {
		return false, nil
	}
	now := time.Now()
	acc.Version = 1
	acc.CreatedAt = now
	acc.UpdatedAt = now
	acc.StripeCustomerID = ""
	acc.StripeSubscriptionID = ""
	acc.MpesaReferenceID = ""
	t.data.accounts[acc.ID] = acc
	return true, nil
}

func (t *memTx) FindAccount(ctx context.Context, id string) (models.Account, error) {
	acc, ok := t.data.accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return acc, nil
}

func (t *memTx) FindAccountForUpdate(ctx context.Context, id string) (models.Account, error) {
	return t.FindAccount(ctx, id)
}

func (t *memTx) FindAccountByMpesaReference(ctx context.Context, ref string) (models.Account, error) {
	return t.findBy(func(a models.Account) bool { return ref != "" && a.MpesaReferenceID == ref })
}

func (t *memTx) FindAccountByStripeCustomer(ctx context.Context, customerID string) (models.Account, error) {
	return t.findBy(func(a models.Account) bool { return customerID != "" && a.StripeCustomerID == customerID })
}

func (t *memTx) findBy(match func(models.Account) bool) (models.Account, error) {
	for _, acc := range t.data.accounts {
		if match(acc) {
			return acc, nil
		}
	}
	return models.Account{}, ErrNotFound
}

func (t *memTx) UpdateAccount(ctx context.Context, id string, expectedVersion int64, patch models.AccountPatch) (models.Account, error) {
	acc, ok := t.data.accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	if acc.Version != expectedVersion {
		return models.Account{}, ErrConflict
	}
	if patch.MpesaReferenceID != nil && *patch.MpesaReferenceID != "" {
		if other, err := t.FindAccountByMpesaReference(ctx, *patch.MpesaReferenceID); err == nil && other.ID != id {
			return models.Account{}, ErrDuplicate
		}
	}
	if patch.StripeCustomerID != nil && *patch.StripeCustomerID != "" {
		if other, err := t.FindAccountByStripeCustomer(ctx, *patch.StripeCustomerID); err == nil && other.ID != id {
			return models.Account{}, ErrDuplicate
		}
	}
	patch.Apply(&acc)
	if acc.JobPostQuota < 0 {
		return models.Account{}, ErrConflict
	}
	acc.Version++
	acc.UpdatedAt = time.Now()
	t.data.accounts[id] = acc
	return acc, nil
}

func (t *memTx) FindAccountsDueForRenewal(ctx context.Context, now time.Time) ([]models.Account, error) {
	var out []models.Account
	for _, acc := range t.data.accounts {
		if acc.SubscriptionEnd.After(now) {
			continue
		}
		if acc.JobPostQuota > 0 || acc.QuotaUnlimited || acc.AutoRenew {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriptionEnd.Before(out[j].SubscriptionEnd) })
	return out, nil
}

func (t *memTx) CreatePaymentRecord(ctx context.Context, rec models.PaymentRecord) (bool, error) {
	if _, ok := t.data.payments[rec.ExternalID]; ok {
		return false, nil
	}
	if _, ok := t.data.accounts[rec.AccountID]; !ok {
		return false, ErrNotFound
	}
	t.data.payments[rec.ExternalID] = rec
	return true, nil
}

func (t *memTx) FindPaymentRecordByExternalID(ctx context.Context, externalID string) (models.PaymentRecord, error) {
	rec, ok := t.data.payments[externalID]
	if !ok {
		return models.PaymentRecord{}, ErrNotFound
	}
	return rec, nil
}

func (t *memTx) CreateJob(ctx context.Context, job models.Job) error {
	if _, ok := t.data.accounts[job.AccountID]; !ok {
		return ErrNotFound
	}
	t.data.jobs[job.ID] = job
	return nil
}
