// Command tanaste is the local-first media library engine: it watches a
// drop folder, ingests and scores media files, harvests external
// metadata, and keeps the library tree self-describing through XML
// sidecars.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanaste/tanaste/internal/config"
	"github.com/tanaste/tanaste/internal/debug"
	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/storage/sqlite"
	"github.com/tanaste/tanaste/internal/telemetry"
)

var (
	configPath string
	jsonOutput bool
	verboseFlag bool
	quietFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "tanaste",
	Short: "Local-first media library engine",
	Long: `tanaste ingests media files dropped into a watch folder, extracts and
scores their metadata, enriches it from external providers, and organises
the files into a self-describing library tree.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verboseFlag {
			debug.SetVerbose(true)
		}
		if quietFlag {
			debug.SetQuiet(true)
		}
		return telemetry.Init(cmd.Context(), "tanaste", Version)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Manifest path (default: ./tanaste.json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")
}

// loadManifest reads the configured manifest, falling back to
// ./tanaste.json and then to built-in defaults when no file exists.
func loadManifest() (*config.Manifest, error) {
	path := configPath
	if path == "" {
		path = "tanaste.json"
		if _, err := os.Stat(path); err != nil {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// openStore opens the database named by the manifest. Integrity failures
// abort startup rather than risking further claim-log damage.
func openStore(ctx context.Context, manifest *config.Manifest) (storage.Store, error) {
	return sqlite.NewWithOptions(ctx, manifest.DatabasePath, sqlite.Options{
		VacuumOnStartup: manifest.Maintenance.VacuumOnStartup,
	})
}

func outputJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
