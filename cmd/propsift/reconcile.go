package main

import (
	"context"
	"fmt"
	"time"

	"propsift/internal/cache"
	"propsift/internal/counters"
	"propsift/internal/registry"
	"propsift/internal/store"

	"github.com/spf13/cobra"
)

var (
	reconcileTenant string
	reconcileRecord string
	reconcileSince  string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair denormalized record counters",
	Long: `Recompute tag, motivation, phone, and email counts from their source
tables and repair any drifted counters. Without flags every tenant is
reconciled in full.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&reconcileTenant, "tenant", "", "Reconcile a single tenant")
	reconcileCmd.Flags().StringVar(&reconcileRecord, "record", "", "Reconcile a single record (requires --tenant)")
	reconcileCmd.Flags().StringVar(&reconcileSince, "since", "", "Only records updated at or after this RFC3339 instant")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	if reconcileRecord != "" && reconcileTenant == "" {
		return fmt.Errorf("--record requires --tenant")
	}

	var since time.Time
	if reconcileSince != "" {
		since, err = time.Parse(time.RFC3339, reconcileSince)
		if err != nil {
			return fmt.Errorf("invalid --since value %q: %w", reconcileSince, err)
		}
	}

	catalog := registry.Default()
	db, err := store.Open(cfg.DB.Path, store.NewSQLGen(catalog), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	client := cache.New(cfg.Cache, logger)
	defer client.Close()
	versions := cache.NewVersions(client, cfg.Cache.VersionTTL, logger)
	invalidator := cache.NewInvalidator(versions, logger)

	reconciler := counters.NewReconciler(db, invalidator, cfg.Reconcile.BatchSize, logger)
	ctx := context.Background()

	if reconcileRecord != "" {
		corrections, err := reconciler.ReconcileRecord(ctx, reconcileTenant, reconcileRecord)
		if err != nil {
			return err
		}
		fmt.Printf("record %s: %d correction(s)\n", reconcileRecord, len(corrections))
		for _, c := range corrections {
			fmt.Printf("  %s: %d -> %d\n", c.Field, c.Stored, c.Actual)
		}
		return nil
	}

	tenants := []string{reconcileTenant}
	if reconcileTenant == "" {
		tenants, err = reconciler.Tenants(ctx)
		if err != nil {
			return err
		}
	}

	for _, tenant := range tenants {
		var summary *counters.Summary
		if since.IsZero() {
			summary, err = reconciler.ReconcileTenant(ctx, tenant)
		} else {
			summary, err = reconciler.ReconcileSince(ctx, tenant, since)
		}
		if err != nil {
			return fmt.Errorf("reconcile tenant %s: %w", tenant, err)
		}
		fmt.Printf("tenant %s: scanned %d, corrected %d, failed %d\n",
			tenant, summary.Scanned, len(summary.Corrections), summary.Failed)
	}

	return nil
}
