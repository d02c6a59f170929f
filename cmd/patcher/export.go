package main

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/patcher-cli/patcher/internal/auth"
	"github.com/patcher-cli/patcher/internal/config"
	"github.com/patcher-cli/patcher/internal/jamf"
	"github.com/patcher-cli/patcher/internal/report"
)

type exportFlags struct {
	path        string
	sortKey     string
	omit        bool
	ios         bool
	cached      bool
	concurrency int
	dateFormat  string
}

func newExportCmd() *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Generate patch compliance reports",
		Long: `export fetches every patch software title summary from Jamf Pro,
computes per-title compliance, and writes CSV and HTML reports into a
Patch-Reports directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.path, "path", "", "output directory for reports (default: current directory)")
	cmd.Flags().StringVar(&flags.sortKey, "sort", "", "column to sort by, e.g. \"completion_percent\"")
	cmd.Flags().BoolVar(&flags.omit, "omit", false, "omit patches released in the last 48 hours")
	cmd.Flags().BoolVar(&flags.ios, "ios", false, "include iOS devices on latest version")
	cmd.Flags().BoolVar(&flags.cached, "cached", false, "re-export the most recent cached dataset without contacting the API")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "maximum concurrent API requests")
	cmd.Flags().StringVar(&flags.dateFormat, "date-format", "", "Go layout for dates in report names")

	return cmd
}

// effectiveOptions layers command-line flags over the saved preferences
// file. A flag the user actually passed wins; otherwise the preference
// value, falling back to the built-in defaults.
func effectiveOptions(cmd *cobra.Command, flags exportFlags, prefs config.Preferences) (report.Options, string, int) {
	opts := report.Options{
		OutputDir:  prefs.OutputDir,
		SortKey:    prefs.SortKey,
		Omit:       flags.omit,
		OmitWindow: time.Duration(prefs.OmitHours) * time.Hour,
		IOS:        flags.ios,
	}

	if cmd.Flags().Changed("path") {
		opts.OutputDir = flags.path
	}
	if cmd.Flags().Changed("sort") {
		opts.SortKey = flags.sortKey
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.OmitWindow <= 0 {
		opts.OmitWindow = report.DefaultOmitWindow
	}

	dateFormat := prefs.DateFormat
	if cmd.Flags().Changed("date-format") {
		dateFormat = flags.dateFormat
	}

	concurrency := prefs.Concurrency
	if cmd.Flags().Changed("concurrency") {
		concurrency = flags.concurrency
	}

	return opts, dateFormat, concurrency
}

func runExport(cmd *cobra.Command, flags exportFlags) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	prefs, err := config.LoadPreferences(env.settings.ConfigDir)
	if err != nil {
		return fmt.Errorf("loading preferences: %w", err)
	}

	opts, dateFormat, concurrency := effectiveOptions(cmd, flags, prefs)

	exporters := []report.Exporter{
		&report.CSVExporter{DateFormat: dateFormat},
		&report.HTMLExporter{DateFormat: dateFormat},
	}

	// Cached runs never touch the API, so they work without stored
	// credentials.
	if flags.cached {
		manager := report.NewManager(nil, exporters, env.store, env.logger)

		paths, err := manager.ProcessCached(opts)
		if err != nil {
			return err
		}

		printPaths(cmd, paths)

		return nil
	}

	clientCfg, err := config.LoadClientConfig(env.store, env.settings)
	if err != nil {
		return err
	}

	if concurrency > 0 {
		if err := clientCfg.SetMaxConcurrency(concurrency); err != nil {
			return err
		}
	}

	transport, err := jamf.NewBoundedClient(nil, clientCfg.MaxConcurrency)
	if err != nil {
		return err
	}

	tokens := auth.NewManager(clientCfg, env.store, nil, env.logger)
	client := jamf.NewClient(clientCfg, tokens, transport, env.logger)

	manager := report.NewManager(client, exporters, env.store, env.logger)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Start()
	defer s.Stop()

	manager.Progress = func(stage string) {
		s.Suffix = " " + stage
	}

	paths, err := manager.ProcessReports(cmd.Context(), opts)
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("Report run failed") + "\n"

		return err
	}

	s.FinalMSG = text.FgGreen.Sprint("Reports written") + "\n"
	s.Stop()

	printPaths(cmd, paths)

	return nil
}

func printPaths(cmd *cobra.Command, paths []string) {
	for _, path := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
}
