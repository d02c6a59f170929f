package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/patcher-cli/patcher/internal/auth"
	"github.com/patcher-cli/patcher/internal/config"
	"github.com/patcher-cli/patcher/internal/store"
)

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Store Jamf Pro API credentials",
		Long: `setup prompts for the Jamf Pro server URL and API client
credentials, verifies them by requesting an access token, and stores
them encrypted in the patcher config directory.`,
		RunE: runSetup,
	}
}

func prompt(cmd *cobra.Command, scanner *bufio.Scanner, label string) (string, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ", label)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}

		return "", fmt.Errorf("no input for %s", label)
	}

	value := strings.TrimSpace(scanner.Text())
	if value == "" {
		return "", fmt.Errorf("%s must not be empty", label)
	}

	return value, nil
}

func runSetup(cmd *cobra.Command, _ []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	scanner := bufio.NewScanner(cmd.InOrStdin())

	serverURL, err := prompt(cmd, scanner, "Jamf Pro URL")
	if err != nil {
		return err
	}

	clientID, err := prompt(cmd, scanner, "API client ID")
	if err != nil {
		return err
	}

	clientSecret, err := prompt(cmd, scanner, "API client secret")
	if err != nil {
		return err
	}

	clientCfg, err := config.NewClientConfig(clientID, clientSecret, serverURL)
	if err != nil {
		return err
	}

	// Verify before persisting so a typo does not leave broken
	// credentials behind.
	tokens := auth.NewManager(clientCfg, store.NewMemStore(), nil, env.logger)

	token, err := tokens.FetchToken(cmd.Context())
	if err != nil {
		return fmt.Errorf("verifying credentials: %w", err)
	}

	entries := map[string]string{
		store.KeyURL:             clientCfg.ServerURL,
		store.KeyClientID:        clientCfg.ClientID,
		store.KeyClientSecret:    clientCfg.ClientSecret,
		store.KeyToken:           token.Token,
		store.KeyTokenExpiration: token.Expires.Format(time.RFC3339),
	}

	for key, value := range entries {
		if err := env.store.Set(key, value); err != nil {
			return fmt.Errorf("storing %s: %w", key, err)
		}
	}

	// Seed a preferences file on first run so users have something to
	// edit; an existing file is left alone.
	if _, err := os.Stat(filepath.Join(env.settings.ConfigDir, "config.yaml")); os.IsNotExist(err) {
		if err := config.SavePreferences(env.settings.ConfigDir, config.DefaultPreferences()); err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), text.FgGreen.Sprintf(
		"Credentials verified and stored, token valid for %d seconds",
		token.SecondsRemainingAt(time.Now()),
	))

	return nil
}
