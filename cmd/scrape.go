package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape every metadata type page and write the entity map",
		Long: `Discovers the catalog, renders each page in the browser context pool,
extracts the field tables and writes the merged entity map to the configured
output backend. Pages that fail are reported and skipped; only a failure to
start any browser aborts the run.`,
		RunE: withApp(runScrapeCommand),
	}
	cmd.Flags().StringP("output", "o", "", "output object path (overrides output.path)")
	cmd.Flags().Int("instances", 0, "number of browser instances")
	cmd.Flags().Int("per-instance", 0, "rendering contexts per browser instance")
	cmd.Flags().Bool("headful", false, "show the browser windows")
	cmd.Flags().Bool("progress", false, "draw a progress bar on stderr")
	cmd.Flags().Bool("serve", false, "serve status and metrics while the run is in progress")
	return cmd
}

func runScrapeCommand(cmd *cobra.Command, appInstance App) error {
	sum, err := appInstance.Run(cmd.Context(), "")
	if err != nil {
		return err
	}
	zap.L().Info("scrape command finished",
		zap.String("run_id", sum.RunID.String()),
		zap.String("output", sum.Artifact.URI),
		zap.Int("entities", len(sum.Entities)),
		zap.Bool("partial", sum.Partial),
	)
	return nil
}
