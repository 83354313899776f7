package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/metadata-scraper/internal/catalog"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List the metadata type pages found in the documentation index",
		Long: `Fetches the documentation index and prints the discovered
{name, url} records as a JSON array without rendering any page.`,
		RunE: withApp(runDiscoverCommand),
	}
}

func runDiscoverCommand(cmd *cobra.Command, appInstance App) error {
	records, err := appInstance.Discover(cmd.Context())
	if err != nil {
		return err
	}
	if records == nil {
		records = []catalog.Record{}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}
