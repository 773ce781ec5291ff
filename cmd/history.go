package main

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/weekly-intel/internal/dedupe"
)

var (
	historyClient string
	historyWeeks  int
)

// historyEntryView is the JSON row printed per recorded link.
type historyEntryView struct {
	Key    string    `json:"key"`
	SeenAt time.Time `json:"seen_at"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List links recorded for a client",
	Long: `Prints the client's recorded link history as JSON, newest first.
These are the (domain, path) keys the dedup stage suppresses on future
runs; --weeks sets the rolling lookback window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		since := dedupe.LookbackSince(time.Now(), historyWeeks)
		keys, err := env.Store.RecentKeys(ctx, historyClient, since)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sortedEntries(keys))
	},
}

// sortedEntries orders history keys newest first, then by key for a
// stable listing.
func sortedEntries(keys map[string]time.Time) []historyEntryView {
	entries := make([]historyEntryView, 0, len(keys))
	for key, seenAt := range keys {
		entries = append(entries, historyEntryView{Key: key, SeenAt: seenAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].SeenAt.Equal(entries[j].SeenAt) {
			return entries[i].SeenAt.After(entries[j].SeenAt)
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

func init() {
	historyCmd.Flags().StringVar(&historyClient, "client", "", "client ID from the roster (required)")
	historyCmd.Flags().IntVar(&historyWeeks, "weeks", 4, "rolling lookback window in weeks")
	historyCmd.MarkFlagRequired("client") //nolint:errcheck
	rootCmd.AddCommand(historyCmd)
}
