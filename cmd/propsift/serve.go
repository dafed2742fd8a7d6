package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propsift/internal/api"
	"propsift/internal/cache"
	"propsift/internal/compiler"
	"propsift/internal/counters"
	"propsift/internal/executor"
	"propsift/internal/registry"
	"propsift/internal/store"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the propsift HTTP API server. The server exposes widget query,
drilldown, invalidation, and catalog endpoints, and runs the counter
reconciliation loop in the background.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
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
	widgets := cache.NewWidgetCache(client, versions, cfg.Cache.WidgetTTL, logger)
	labels := cache.NewLabelCache(client, versions, cfg.Cache.LabelTTL, logger)
	invalidator := cache.NewInvalidator(versions, logger)

	exec := executor.New(db, catalog, logger).WithLabelCache(labels)

	server := api.NewServer(cfg.API, api.Deps{
		Catalog:     catalog,
		Compiler:    compiler.New(catalog, logger),
		Executor:    exec,
		Widgets:     widgets,
		Invalidator: invalidator,
		DB:          db,
	}, logger)

	reconciler := counters.NewReconciler(db, invalidator, cfg.Reconcile.BatchSize, logger)
	loop := counters.NewLoop(reconciler, cfg.Reconcile.Interval, logger)
	loop.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("propsift API listening on http://%s\n", cfg.API.Addr)
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		loop.Stop()
		if err != nil {
			logger.Error("Server error", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error during shutdown", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}

		loop.Stop()
		// Let in-flight cache write-backs land before the client closes.
		widgets.Flush()

		logger.Info("Server stopped gracefully", nil)
	}

	return nil
}
