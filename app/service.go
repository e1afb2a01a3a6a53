package app

import (
	"context"
	"fmt"

	"github.com/sethmwebi/medrin-jobs-backend/app/billing"
	"github.com/sethmwebi/medrin-jobs-backend/app/config"
	"github.com/sethmwebi/medrin-jobs-backend/app/events"
	"github.com/sethmwebi/medrin-jobs-backend/app/gateways"
	"github.com/sethmwebi/medrin-jobs-backend/app/idempotency"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
)

// Service is the fully wired billing core shared by every entrypoint.
type Service struct {
	Handlers *Handlers
	Renewer  *billing.Renewer
	Store    store.Store
	Catalog  *billing.Catalog
	SQS      *sqs.Client // nil without QUEUE_URL

	closers []func()
}

// NewService connects the store and the optional Redis guard and event
// queue, then builds the billing components on top of them.
func NewService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Service, error) {
	svc := &Service{}
	ok := false
	defer func() {
		if !ok {
			svc.Close()
		}
	}()

	catalog := billing.DefaultCatalog()
	if cfg.PlanCatalogPath != "" {
		c, err := billing.LoadCatalog(cfg.PlanCatalogPath)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	svc.Catalog = catalog

	policy, err := billing.ParseRenewalPolicy(cfg.Scheduler.RenewalPolicy)
	if err != nil {
		return nil, err
	}

	s, closeStore, err := OpenStore(ctx, cfg.DB, log)
	if err != nil {
		return nil, err
	}
	svc.Store = s
	svc.closers = append(svc.closers, closeStore)

	var guard billing.Locker
	if cfg.Redis.URL != "" {
		g, err := idempotency.NewRedisGuard(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		guard = g
		svc.closers = append(svc.closers, func() { g.Close() })
	} else {
		log.Warn().Msg("REDIS_URL not set; callbacks rely on payment record uniqueness only")
	}

	var publisher billing.EventPublisher = events.Noop{}
	if cfg.QueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		svc.SQS = sqs.NewFromConfig(awsCfg)
		publisher = events.NewPublisher(svc.SQS, cfg.QueueURL)
	}

	manager := billing.NewManager(s, catalog, log)
	tracker := billing.NewTracker(billing.TrackerConfig{
		Store:   s,
		Catalog: catalog,
		Card:    gateways.NewStripe(cfg.Stripe.SecretKey, nil),
		Mobile:  gateways.NewMpesa(cfg.Mpesa),
		Mpesa: billing.MpesaSettings{
			ShortCode:   cfg.Mpesa.ShortCode,
			PassKey:     cfg.Mpesa.PassKey,
			CallbackURL: cfg.Mpesa.CallbackURL,
		},
		Currency: cfg.Stripe.Currency,
		Guard:    guard,
		Events:   publisher,
		Logger:   log,
	})
	svc.Renewer = billing.NewRenewer(billing.RenewerConfig{
		Store:       s,
		Catalog:     catalog,
		Policy:      policy,
		Concurrency: cfg.Scheduler.Concurrency,
		Logger:      log,
	})
	svc.Handlers = &Handlers{
		Manager:       manager,
		Tracker:       tracker,
		Store:         s,
		Catalog:       catalog,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Log:           log,
	}

	ok = true
	return svc, nil
}

// Close releases connections in reverse order of opening.
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
