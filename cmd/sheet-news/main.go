package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sheet-news-scraper/internal/config"
	"sheet-news-scraper/internal/observability"
)

var (
	configPath string
	dryRun     bool
	renderMode string

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:           "sheet-news",
	Short:         "Scrape news listings into a shared table and sweep old rows",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err = observability.NewLogger(cfg.Observability)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		logger = logger.With("run_id", uuid.NewString(), "command", cmd.Name())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape every configured site and append new articles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrape(cmd.Context())
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Archive and delete rows older than the retention threshold",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd.Context())
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <site.json>",
	Short: "Print what the selectors of one site extract, without touching the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPreview(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to the YAML config")
	scrapeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Scrape and dedupe but write to an in-memory copy of the table")
	sweepCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log the rows that would be deleted without changing anything")
	previewCmd.Flags().StringVar(&renderMode, "render", "", "Override the site's render mode (static or browser)")

	rootCmd.AddCommand(scrapeCmd, sweepCmd, previewCmd)

	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("Command failed", "error", err.Error())
			logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
