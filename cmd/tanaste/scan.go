package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanaste/tanaste/internal/sidecar"
)

var scanCmd = &cobra.Command{
	Use:   "scan [root]",
	Short: "Rebuild database state from sidecar files (the great inhale)",
	Long: `scan walks the library tree, reads every tanaste.xml, and upserts the
hubs and editions it describes. Edition sidecars whose content hash
matches no ingested asset are skipped; ingest first, then scan.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifest, err := loadManifest()
		if err != nil {
			return err
		}
		root := manifest.Ingestion.LibraryRoot
		if len(args) == 1 {
			root = args[0]
		}
		if root == "" {
			return fmt.Errorf("no library root configured and none given")
		}

		store, err := openStore(cmd.Context(), manifest)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		summary, err := sidecar.NewScanner(store).Scan(cmd.Context(), root)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"hubs_upserted":     summary.HubsUpserted,
				"editions_upserted": summary.EditionsUpserted,
				"errors":            summary.Errors,
				"elapsed":           summary.Elapsed.String(),
			})
			return nil
		}
		fmt.Printf("scanned %s in %s: %d hubs, %d editions, %d errors\n",
			root, summary.Elapsed.Round(time.Millisecond), summary.HubsUpserted, summary.EditionsUpserted, summary.Errors)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
