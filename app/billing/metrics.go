package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medrin",
		Subsystem: "billing",
		Name:      "payments_recorded_total",
		Help:      "Payment records created, by payment method.",
	}, []string{"method"})

	callbackOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medrin",
		Subsystem: "billing",
		Name:      "mpesa_callbacks_total",
		Help:      "M-Pesa callbacks handled, by outcome.",
	}, []string{"outcome"})

	sweepAccounts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medrin",
		Subsystem: "billing",
		Name:      "renewal_sweep_accounts_total",
		Help:      "Accounts visited by the renewal sweep, by result.",
	}, []string{"result"})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "medrin",
		Subsystem: "billing",
		Name:      "renewal_sweep_duration_seconds",
		Help:      "Wall time of a renewal sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	quotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "medrin",
		Subsystem: "billing",
		Name:      "quota_rejections_total",
		Help:      "Job posts refused because the account quota was exhausted.",
	})
)
