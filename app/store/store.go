// Package store persists accounts, payment records and job posts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means the account version changed since it was read.
	ErrConflict = errors.New("account was modified concurrently")
	// ErrDuplicate means a unique key (email, mpesa reference) is already taken.
	ErrDuplicate = errors.New("duplicate key")
)

// Store is the persistence contract used by billing. A Store passed to a
// WithTx callback is bound to that transaction; FindAccountForUpdate then
// holds the account row until the transaction ends.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	CreateAccount(ctx context.Context, acc models.Account) (created bool, err error)
	FindAccount(ctx context.Context, id string) (models.Account, error)
	FindAccountForUpdate(ctx context.Context, id string) (models.Account, error)
	FindAccountByMpesaReference(ctx context.Context, ref string) (models.Account, error)
	FindAccountByStripeCustomer(ctx context.Context, customerID string) (models.Account, error)
	// UpdateAccount applies patch only if the stored version equals expectedVersion.
	UpdateAccount(ctx context.Context, id string, expectedVersion int64, patch models.AccountPatch) (models.Account, error)
	FindAccountsDueForRenewal(ctx context.Context, now time.Time) ([]models.Account, error)

	// CreatePaymentRecord returns created=false when the external id is already recorded.
	CreatePaymentRecord(ctx context.Context, rec models.PaymentRecord) (created bool, err error)
	FindPaymentRecordByExternalID(ctx context.Context, externalID string) (models.PaymentRecord, error)

	CreateJob(ctx context.Context, job models.Job) error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
	_ Store = (*memTx)(nil)
)
