package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/franz/medialib/internal/util"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fill artist MusicBrainz ids from the online database",
	Long: `Look up every catalogued artist on MusicBrainz and store the matched
identifier and a short annotation. Requests are rate-limited to one per
second; misses are cached so re-runs stay cheap.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		if err := lib.EnrichArtists(context.Background()); err != nil {
			return err
		}
		util.SuccessLog("Artist enrichment complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
