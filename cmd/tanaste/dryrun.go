package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tanaste/tanaste/internal/engine"
)

var dryrunCmd = &cobra.Command{
	Use:   "dryrun <root>",
	Short: "Show what ingesting a directory would do, without doing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifest, err := loadManifest()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), manifest)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		eng := engine.New(store, manifest, nil, nil)
		ops, err := eng.DryRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(ops)
			return nil
		}
		for _, op := range ops {
			switch {
			case op.Destination != "":
				fmt.Printf("%-14s %s -> %s\n", op.Kind, op.Source, op.Destination)
			case op.Reason != "":
				fmt.Printf("%-14s %s (%s)\n", op.Kind, op.Source, op.Reason)
			default:
				fmt.Printf("%-14s %s\n", op.Kind, op.Source)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dryrunCmd)
}
