package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"

	"github.com/rs/zerolog"
)

// RecordFinder looks up stored payment records.
type RecordFinder interface {
	FindPaymentRecordByExternalID(ctx context.Context, externalID string) (models.PaymentRecord, error)
}

// AuditHandler checks each published payment against its stored record.
// Events that can never match are dropped as permanent failures; store
// errors are retried.
func AuditHandler(records RecordFinder, log zerolog.Logger) Handler {
	log = log.With().Str("component", "payment_audit").Logger()
	return func(ctx context.Context, evt models.PaymentEvent) error {
		if evt.Type != "payment.succeeded" {
			return fmt.Errorf("%w: unknown event type %q", ErrPermanent, evt.Type)
		}
		if evt.ExternalID == "" {
			return fmt.Errorf("%w: event without external id", ErrPermanent)
		}

		rec, err := records.FindPaymentRecordByExternalID(ctx, evt.ExternalID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: no payment record for %s", ErrPermanent, evt.ExternalID)
		}
		if err != nil {
			return err
		}
		if rec.AccountID != evt.AccountID || rec.Amount != evt.Amount || rec.Method != evt.Method {
			return fmt.Errorf("%w: payment %s does not match its record", ErrPermanent, evt.ExternalID)
		}

		log.Info().
			Str("external_id", evt.ExternalID).
			Str("account_id", evt.AccountID).
			Str("method", string(evt.Method)).
			Str("plan", string(evt.Plan)).
			Int64("amount", evt.Amount).
			Str("currency", evt.Currency).
			Msg("payment audited")
		return nil
	}
}
