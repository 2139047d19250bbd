package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tanaste/tanaste/internal/debug"
	"github.com/tanaste/tanaste/internal/engine"
	"github.com/tanaste/tanaste/internal/eventbus"
	"github.com/tanaste/tanaste/internal/harvest"
	"github.com/tanaste/tanaste/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion engine and harvest dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		manifest, err := loadManifest()
		if err != nil {
			return err
		}
		if err := manifest.Validate(); err != nil {
			return err
		}

		store, err := openStore(cmd.Context(), manifest)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if _, err := store.EnsureOwnerProfile(ctx); err != nil {
			return err
		}

		bus := eventbus.New()
		bus.Register(eventbus.LogHandler{})
		if metrics, err := telemetry.NewEventMetrics(); err == nil {
			bus.Register(metrics)
		}

		queue := harvest.NewQueue(0)
		gates := harvest.NewGates()
		providers := harvest.DefaultProviders(harvest.NewClientFactory(), gates)
		if err := harvest.SyncRegistry(ctx, store, providers); err != nil {
			return err
		}
		dispatcher := harvest.NewDispatcher(queue, store, manifest, bus, gates, providers...)
		dispatcher.Start(ctx)
		defer dispatcher.Stop()

		eng := engine.New(store, manifest, queue, bus)
		if err := eng.Start(ctx); err != nil {
			return err
		}
		defer eng.Stop()

		debug.PrintNormal("tanaste: watching %s\n", manifest.Ingestion.WatchDirectory)
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
