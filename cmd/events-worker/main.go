package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sethmwebi/medrin-jobs-backend/app"
	"github.com/sethmwebi/medrin-jobs-backend/app/config"
	"github.com/sethmwebi/medrin-jobs-backend/app/events"
	"github.com/sethmwebi/medrin-jobs-backend/app/logging"
)

// events-worker drains the payment event queue and audits each event
// against the stored payment record.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.Init(cfg.Logs)

	if cfg.QueueURL == "" {
		log.Fatal().Msg("QUEUE_URL environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.NewService(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize service")
	}
	defer svc.Close()

	consumer := events.NewConsumer(svc.SQS, cfg.QueueURL, events.AuditHandler(svc.Store, log), log)
	if err := consumer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("consumer stopped")
	}
}
