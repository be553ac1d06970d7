package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akalivaty/Artale-drop-bot/internal/indexer"
	"github.com/akalivaty/Artale-drop-bot/internal/store"
)

func newBuildCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Rebuild the item index cache from the drop and alias tables",
		Long: "Reads the drop table and item alias table, builds the item index and " +
			"overwrites the index cache. An existing cache is ignored.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := indexer.NewLoader(store.NewFileStore(opts.cfg.Data.Dir), opts.cfg.Data, nil)
			snap, err := loader.Rebuild(cmd.Context())
			if snap == nil {
				return err
			}
			canonical, aliases := snap.Items.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "%d monsters, %d items, %d aliases\n",
				snap.Drops.Len(), canonical, aliases)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.cfg.Data.IndexCache)
			return nil
		},
	}
}
