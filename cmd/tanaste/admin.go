package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tanaste/tanaste/internal/types"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey <label> <role>",
	Short: "Issue an API key (the plaintext is shown once and never stored)",
	Args:  cobra.ExactArgs(2),
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

		plaintext, key, err := store.CreateAPIKey(cmd.Context(), args[0], types.ProfileRole(args[1]))
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]string{"id": key.ID, "label": key.Label, "key": plaintext})
			return nil
		}
		fmt.Printf("%s\n", plaintext)
		fmt.Fprintf(cmd.ErrOrStderr(), "key %s (%s) created; store the plaintext now, it cannot be recovered\n", key.ID, key.Label)
		return nil
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List dashboard profiles",
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

		profiles, err := store.ListProfiles(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(profiles)
			return nil
		}
		for _, p := range profiles {
			fmt.Printf("%s  %-15s %s\n", p.ID, p.Role, p.DisplayName)
		}
		return nil
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List canonical values flagged as conflicted",
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

		values, err := store.GetConflicted(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(values)
			return nil
		}
		for _, v := range values {
			fmt.Printf("%s  %s=%q (confidence %.2f)\n", v.EntityID, v.Key, v.Value, v.Confidence)
		}
		if len(values) == 0 {
			fmt.Println("no conflicts")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(conflictsCmd)
}
