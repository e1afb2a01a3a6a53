package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app"
	"github.com/sethmwebi/medrin-jobs-backend/app/billing"
	"github.com/sethmwebi/medrin-jobs-backend/app/config"
	"github.com/sethmwebi/medrin-jobs-backend/app/logging"
	"github.com/sethmwebi/medrin-jobs-backend/app/models"

	"github.com/spf13/cobra"
)

var (
	sweepPolicy string
	catalogPath string
)

// loadService reads the environment config and wires the billing core.
func loadService(ctx context.Context, mutate func(*config.Config)) (*app.Service, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	log := logging.Init(cfg.Logs)
	return app.NewService(ctx, cfg, log)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one renewal sweep over accounts whose term has ended",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		svc, err := loadService(ctx, func(c *config.Config) {
			if sweepPolicy != "" {
				c.Scheduler.RenewalPolicy = sweepPolicy
			}
		})
		if err != nil {
			return err
		}
		defer svc.Close()

		r := svc.Renewer.Sweep(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "due=%d renewed=%d lapsed=%d skipped=%d failed=%d\n",
			r.Due, r.Renewed, r.Lapsed, r.Skipped, r.Failed)
		if r.Failed > 0 {
			return fmt.Errorf("%d accounts failed to renew", r.Failed)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the Postgres schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService(cmd.Context(), nil)
		if err != nil {
			return err
		}
		svc.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Print the plan catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := catalogPath
		if path == "" {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			path = cfg.PlanCatalogPath
		}
		catalog, err := billing.LoadCatalog(path)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PLAN\tCARD (cents)\tM-PESA (KES)\tQUOTA\tTERM\tAUTO-RENEW")
		for _, p := range catalog.Plans() {
			quota := fmt.Sprint(p.Quota)
			if p.Unlimited {
				quota = "unlimited"
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%dmo\t%t\n", p.Name, p.CardPrice, p.LocalPrice, quota, p.TermMonths, p.AutoRenews)
		}
		return w.Flush()
	},
}

var applyPlanCmd = &cobra.Command{
	Use:   "apply-plan ACCOUNT_ID PLAN",
	Short: "Start a fresh term on PLAN for an account without a payment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		acc, err := svc.Handlers.Manager.ApplyPlan(cmd.Context(), args[0], models.Plan(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s now on %s until %s (quota %d)\n",
			acc.ID, acc.Plan, acc.SubscriptionEnd.Format(time.RFC3339), acc.RemainingQuota())
		return nil
	},
}
