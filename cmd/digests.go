package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	digestsClient string
	digestsWeek   string
	digestsLimit  int
)

var digestsCmd = &cobra.Command{
	Use:   "digests",
	Short: "Show stored digests for a client",
	Long: `Prints stored digest snapshots as JSON. By default the most recent
snapshots are listed; --week fetches the digest for one specific ISO week
(e.g. 2026-W35).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if digestsWeek != "" {
			d, err := env.Store.GetDigest(ctx, digestsClient, digestsWeek)
			if err != nil {
				return err
			}
			if d == nil {
				return eris.Errorf("no digest for client %s week %s", digestsClient, digestsWeek)
			}
			return enc.Encode(d)
		}

		digests, err := env.Store.ListDigests(ctx, digestsClient, digestsLimit)
		if err != nil {
			return err
		}
		return enc.Encode(digests)
	},
}

func init() {
	digestsCmd.Flags().StringVar(&digestsClient, "client", "", "client ID from the roster (required)")
	digestsCmd.Flags().StringVar(&digestsWeek, "week", "", "ISO week to fetch, e.g. 2026-W35")
	digestsCmd.Flags().IntVar(&digestsLimit, "limit", 8, "number of snapshots to list")
	digestsCmd.MarkFlagRequired("client") //nolint:errcheck
	rootCmd.AddCommand(digestsCmd)
}
