package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patcher-cli/patcher/internal/store"
)

func newResetCmd() *cobra.Command {
	var (
		credentials bool
		cache       bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear stored credentials and cached datasets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Bare "patcher reset" clears everything.
			if !credentials && !cache {
				credentials = true
				cache = true
			}

			return runReset(cmd, credentials, cache)
		},
	}

	cmd.Flags().BoolVar(&credentials, "credentials", false, "clear stored credentials and tokens")
	cmd.Flags().BoolVar(&cache, "cache", false, "clear cached report datasets")

	return cmd
}

func runReset(cmd *cobra.Command, credentials, cache bool) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	if credentials {
		keys := []string{
			store.KeyToken, store.KeyTokenExpiration,
			store.KeyClientID, store.KeyClientSecret, store.KeyURL,
		}

		for _, key := range keys {
			if _, err := env.store.Delete(key); err != nil {
				return fmt.Errorf("clearing %s: %w", key, err)
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Credentials cleared")
	}

	if cache {
		n, err := env.store.DatasetCount()
		if err != nil {
			return err
		}

		if err := env.store.ResetCache(); err != nil {
			return fmt.Errorf("clearing dataset cache: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Dataset cache cleared (%d datasets)\n", n)
	}

	return nil
}
