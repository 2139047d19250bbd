package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tanaste/tanaste/internal/engine"
)

var lockCmd = &cobra.Command{
	Use:   "lock <entity-id> <key> <value>",
	Short: "Pin a metadata field to a value no provider can override",
	Args:  cobra.ExactArgs(3),
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
		if err := eng.LockField(cmd.Context(), args[0], args[1], args[2]); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]string{
				"entity_id": args[0],
				"key":       args[1],
				"value":     args[2],
				"status":    "locked",
			})
			return nil
		}
		fmt.Printf("locked %s=%q on %s\n", args[1], args[2], args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lockCmd)
}
