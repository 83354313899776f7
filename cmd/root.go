// Package cmd defines the CLI commands for the metadata-scraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/metadata-scraper/internal/catalog"
	"github.com/JakeFAU/metadata-scraper/internal/config"
	"github.com/JakeFAU/metadata-scraper/internal/logging"
	"github.com/JakeFAU/metadata-scraper/internal/server"
)

const shutdownTimeout = 10 * time.Second

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the part of the application the subcommands use. Tests inject a
// fake through newApp.
type App interface {
	Run(ctx context.Context, outputPath string) (server.Summary, error)
	Discover(ctx context.Context) ([]catalog.Record, error)
	Close(ctx context.Context) error
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return server.Build(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata-scraper",
		Short: "Scrapes the Metadata API reference into a JSON entity map.",
		Long: `metadata-scraper discovers every metadata type page listed in the
documentation index, renders the pages across a pool of headless browser
contexts and writes the merged field tables as one JSON document.`,
		SilenceUsage: true,

		// Flag overrides are applied before the application is built.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyFlagOverrides(cmd, &cfg); err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				File: logging.FileConfig{
					Path:       cfg.Logging.File,
					MaxSizeMB:  cfg.Logging.MaxSizeMB,
					MaxBackups: cfg.Logging.MaxBackups,
					MaxAgeDays: cfg.Logging.MaxAgeDays,
					Compress:   cfg.Logging.Compress,
				},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); SCRAPER_* env vars override it")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newDiscoverCmd())
	return cmd
}

// applyFlagOverrides copies explicitly set subcommand flags onto cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("instances") {
		n, err := flags.GetInt("instances")
		if err != nil {
			return err
		}
		cfg.Browser.Instances = n
	}
	if flags.Changed("per-instance") {
		n, err := flags.GetInt("per-instance")
		if err != nil {
			return err
		}
		cfg.Browser.PerInstance = n
	}
	if flags.Changed("headful") {
		headful, err := flags.GetBool("headful")
		if err != nil {
			return err
		}
		cfg.Browser.Headless = !headful
	}
	if flags.Changed("output") {
		path, err := flags.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output.Path = path
	}
	if flags.Changed("progress") {
		bar, err := flags.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Logging.ProgressBar = bar
	}
	if flags.Changed("serve") {
		serve, err := flags.GetBool("serve")
		if err != nil {
			return err
		}
		cfg.Server.Enabled = serve
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// withApp resolves the application built by the root pre-run hook and
// closes it once fn returns, whatever the outcome.
func withApp(fn func(cmd *cobra.Command, app App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		appInstance, ok := cmd.Context().Value(appKey).(App)
		if !ok || appInstance == nil {
			return errors.New("application services not initialized")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
			defer cancel()
			if cerr := appInstance.Close(ctx); cerr != nil && err == nil {
				err = fmt.Errorf("close application: %w", cerr)
			}
			_ = zap.L().Sync()
		}()
		return fn(cmd, appInstance)
	}
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
