package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

const accountColumns = `id, email, plan, subscription_start, subscription_end, job_post_quota,
	quota_unlimited, auto_renew, stripe_customer_id, stripe_subscription_id,
	mpesa_reference_id, version, created_at, updated_at`

const paymentColumns = `id, account_id, plan, amount, currency, method, status, external_id, created_at`

const uniqueViolation = "23505"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres implements Store on database/sql with the lib/pq driver.
type Postgres struct {
	db   *sql.DB
	q    querier
	inTx bool
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, q: db}
}

// Open connects and pings the database.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return d, nil
}

// Migrate creates the tables and indexes if they are missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *Postgres) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if p.inTx {
		return fn(p)
	}
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&Postgres{db: p.db, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) CreateAccount(ctx context.Context, acc models.Account) (bool, error) {
	res, err := p.q.ExecContext(ctx, `
		INSERT INTO accounts (id, email, plan, subscription_start, subscription_end,
			job_post_quota, quota_unlimited, auto_renew)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING;
	`,
		acc.ID,
		acc.Email,
		string(acc.Plan),
		acc.SubscriptionStart,
		acc.SubscriptionEnd,
		acc.JobPostQuota,
		acc.QuotaUnlimited,
		acc.AutoRenew,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Postgres) FindAccount(ctx context.Context, id string) (models.Account, error) {
	return p.findAccount(ctx, "id = $1", "", id)
}

func (p *Postgres) FindAccountForUpdate(ctx context.Context, id string) (models.Account, error) {
	return p.findAccount(ctx, "id = $1", p.lockClause(), id)
}

func (p *Postgres) FindAccountByMpesaReference(ctx context.Context, ref string) (models.Account, error) {
	if ref == "" {
		return models.Account{}, ErrNotFound
	}
	return p.findAccount(ctx, "mpesa_reference_id = $1", p.lockClause(), ref)
}

func (p *Postgres) FindAccountByStripeCustomer(ctx context.Context, customerID string) (models.Account, error) {
	if customerID == "" {
		return models.Account{}, ErrNotFound
	}
	return p.findAccount(ctx, "stripe_customer_id = $1", p.lockClause(), customerID)
}

func (p *Postgres) lockClause() string {
	if p.inTx {
		return "FOR UPDATE"
	}
	return ""
}

func (p *Postgres) findAccount(ctx context.Context, where, lock string, arg any) (models.Account, error) {
	q := fmt.Sprintf("SELECT %s FROM accounts WHERE %s %s;", accountColumns, where, lock)
	acc, err := scanAccount(p.q.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ErrNotFound
	}
	return acc, err
}

func (p *Postgres) UpdateAccount(ctx context.Context, id string, expectedVersion int64, patch models.AccountPatch) (models.Account, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Plan != nil {
		add("plan", string(*patch.Plan))
	}
	if patch.SubscriptionStart != nil {
		add("subscription_start", *patch.SubscriptionStart)
	}
	if patch.SubscriptionEnd != nil {
		add("subscription_end", *patch.SubscriptionEnd)
	}
	if patch.JobPostQuota != nil {
		add("job_post_quota", *patch.JobPostQuota)
	}
	if patch.QuotaUnlimited != nil {
		add("quota_unlimited", *patch.QuotaUnlimited)
	}
	if patch.AutoRenew != nil {
		add("auto_renew", *patch.AutoRenew)
	}
	if patch.StripeCustomerID != nil {
		add("stripe_customer_id", nullIfEmpty(*patch.StripeCustomerID))
	}
	if patch.StripeSubscriptionID != nil {
		add("stripe_subscription_id", nullIfEmpty(*patch.StripeSubscriptionID))
	}
	if patch.MpesaReferenceID != nil {
		add("mpesa_reference_id", nullIfEmpty(*patch.MpesaReferenceID))
	}
	sets = append(sets, "version = version + 1", "updated_at = now()")
	args = append(args, id, expectedVersion)

	q := fmt.Sprintf(
		"UPDATE accounts SET %s WHERE id = $%d AND version = $%d RETURNING %s;",
		strings.Join(sets, ", "),
		len(args)-1,
		len(args),
		accountColumns,
	)
	acc, err := scanAccount(p.q.QueryRowContext(ctx, q, args...))
	switch {
	case err == nil:
		return acc, nil
	case errors.Is(err, sql.ErrNoRows):
		var exists bool
		if err := p.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1);`, id).Scan(&exists); err != nil {
			return models.Account{}, err
		}
		if !exists {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, ErrConflict
	case isUniqueViolation(err):
		return models.Account{}, fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return models.Account{}, err
}

func (p *Postgres) FindAccountsDueForRenewal(ctx context.Context, now time.Time) ([]models.Account, error) {
	rows, err := p.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM accounts
		WHERE subscription_end <= $1
			AND (job_post_quota > 0 OR quota_unlimited OR auto_renew)
		ORDER BY subscription_end;
	`, accountColumns), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (p *Postgres) CreatePaymentRecord(ctx context.Context, rec models.PaymentRecord) (bool, error) {
	res, err := p.q.ExecContext(ctx, `
		INSERT INTO payment_records (id, account_id, plan, amount, currency, method, status, external_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_id) DO NOTHING;
	`,
		rec.ID,
		rec.AccountID,
		nullIfEmpty(string(rec.Plan)),
		rec.Amount,
		rec.Currency,
		string(rec.Method),
		string(rec.Status),
		rec.ExternalID,
		rec.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Postgres) FindPaymentRecordByExternalID(ctx context.Context, externalID string) (models.PaymentRecord, error) {
	var (
		rec  models.PaymentRecord
		plan sql.NullString
	)
	err := p.q.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM payment_records
		WHERE external_id = $1;
	`, paymentColumns), externalID).Scan(
		&rec.ID,
		&rec.AccountID,
		&plan,
		&rec.Amount,
		&rec.Currency,
		&rec.Method,
		&rec.Status,
		&rec.ExternalID,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PaymentRecord{}, ErrNotFound
	}
	if err != nil {
		return models.PaymentRecord{}, err
	}
	rec.Plan = models.Plan(plan.String)
	return rec, nil
}

func (p *Postgres) CreateJob(ctx context.Context, job models.Job) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO jobs (id, account_id, title, description, company, country, category, salary, email, contact, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`,
		job.ID,
		job.AccountID,
		job.Title,
		job.Description,
		job.Company,
		job.Country,
		job.Category,
		job.Salary,
		job.Email,
		job.Contact,
		job.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var (
		acc            models.Account
		stripeCustomer sql.NullString
		stripeSub      sql.NullString
		mpesaRef       sql.NullString
	)
	err := row.Scan(
		&acc.ID,
		&acc.Email,
		&acc.Plan,
		&acc.SubscriptionStart,
		&acc.SubscriptionEnd,
		&acc.JobPostQuota,
		&acc.QuotaUnlimited,
		&acc.AutoRenew,
		&stripeCustomer,
		&stripeSub,
		&mpesaRef,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return models.Account{}, err
	}
	acc.StripeCustomerID = stripeCustomer.String
	acc.StripeSubscriptionID = stripeSub.String
	acc.MpesaReferenceID = mpesaRef.String
	return acc, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
