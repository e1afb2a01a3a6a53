package billing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RenewalPolicy decides what happens to a paid plan whose term has ended.
type RenewalPolicy string

const (
	// PolicyRenew starts a new term and resets quota without a new charge.
	PolicyRenew RenewalPolicy = "renew"
	// PolicyExpire lets every ended term lapse until the customer pays again.
	PolicyExpire RenewalPolicy = "expire"
)

func ParseRenewalPolicy(s string) (RenewalPolicy, error) {
	switch p := RenewalPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyRenew, nil
	case PolicyRenew, PolicyExpire:
		return p, nil
	}
	return "", fmt.Errorf("unknown renewal policy %q", s)
}

type sweepResult string

const (
	resultRenewed sweepResult = "renewed"
	resultLapsed  sweepResult = "lapsed"
	resultSkipped sweepResult = "skipped"
	resultFailed  sweepResult = "failed"
)

// SweepReport counts what one sweep did.
type SweepReport struct {
	Due     int
	Renewed int
	Lapsed  int
	Skipped int
	Failed  int
}

func (r *SweepReport) add(res sweepResult) {
	switch res {
	case resultRenewed:
		r.Renewed++
	case resultLapsed:
		r.Lapsed++
	case resultSkipped:
		r.Skipped++
	case resultFailed:
		r.Failed++
	}
}

type RenewerConfig struct {
	Store       store.Store
	Catalog     *Catalog
	Policy      RenewalPolicy
	Concurrency int
	Logger      zerolog.Logger
}

// Renewer enforces the end of subscription terms.
type Renewer struct {
	store       store.Store
	catalog     *Catalog
	policy      RenewalPolicy
	concurrency int
	clock       Clock
	log         zerolog.Logger
}

func NewRenewer(cfg RenewerConfig) *Renewer {
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyRenew
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Renewer{
		store:       cfg.Store,
		catalog:     cfg.Catalog,
		policy:      policy,
		concurrency: concurrency,
		clock:       time.Now,
		log:         cfg.Logger.With().Str("component", "renewals").Logger(),
	}
}

// SetClock replaces the time source.
func (r *Renewer) SetClock(c Clock) {
	r.clock = c
}

// Sweep renews or lapses every account whose term ended before now. Errors
// are logged and counted per account and never stop the sweep.
func (r *Renewer) Sweep(ctx context.Context) SweepReport {
	started := time.Now()
	defer func() { sweepDuration.Observe(time.Since(started).Seconds()) }()

	now := r.clock()
	var report SweepReport

	due, err := r.store.FindAccountsDueForRenewal(ctx, now)
	if err != nil {
		r.log.Error().Err(err).Msg("list accounts due for renewal")
		return report
	}
	report.Due = len(due)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.concurrency)
	for _, acc := range due {
		id := acc.ID
		g.Go(func() error {
			res, err := r.renew(ctx, id, now)
			if err != nil {
				r.log.Error().Err(err).Str("account_id", id).Msg("renew account")
				res = resultFailed
			}
			sweepAccounts.WithLabelValues(string(res)).Inc()
			mu.Lock()
			report.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.log.Info().Int("due", report.Due).Int("renewed", report.Renewed).Int("lapsed", report.Lapsed).
		Int("skipped", report.Skipped).Int("failed", report.Failed).Msg("renewal sweep finished")
	return report
}

// renew re-reads the account under lock: a payment may have started a new
// term since the account was listed.
func (r *Renewer) renew(ctx context.Context, accountID string, now time.Time) (sweepResult, error) {
	const op = "renew"

	res := resultSkipped
	err := withLockedAccount(ctx, r.store, op, accountID, func(tx store.Store, acc models.Account) error {
		if acc.SubscriptionEnd.After(now) {
			res = resultSkipped
			return nil
		}

		months := 0
		spec, err := r.catalog.Lookup(acc.Plan)
		if err != nil {
			r.log.Warn().Str("account_id", acc.ID).Str("plan", string(acc.Plan)).Msg("account on unknown plan, lapsing")
		} else {
			months = spec.RenewalMonths()
		}

		if months == 0 || !acc.AutoRenew || r.policy == PolicyExpire {
			if acc.JobPostQuota == 0 && !acc.QuotaUnlimited && !acc.AutoRenew {
				res = resultSkipped
				return nil
			}
			zero := 0
			off := false
			if _, err := tx.UpdateAccount(ctx, acc.ID, acc.Version, models.AccountPatch{
				JobPostQuota:   &zero,
				QuotaUnlimited: &off,
				AutoRenew:      &off,
			}); err != nil {
				return storeError(op, err)
			}
			res = resultLapsed
			return nil
		}

		if _, err := ApplyPlanTx(ctx, tx, acc, spec, now); err != nil {
			return err
		}
		res = resultRenewed
		return nil
	})
	return res, err
}

// Scheduler runs Sweep on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	renewer *Renewer
	timeout time.Duration
	log     zerolog.Logger
}

// NewScheduler registers the sweep under spec ("@every 15m", "0 0 1 * *").
// A sweep that is still running when the next one is due is skipped.
func NewScheduler(r *Renewer, spec string, timeout time.Duration, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		renewer: r,
		timeout: timeout,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, fmt.Errorf("schedule renewal sweep %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.log.Info().Msg("renewal scheduler started")
	s.cron.Start()
}

// Stop prevents new sweeps and waits for a running one, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("renewal sweep still running at shutdown")
	}
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.renewer.Sweep(ctx)
}
