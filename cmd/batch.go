package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/weekly-intel/internal/pipeline"
)

var (
	batchID          int
	batchSize        int
	batchConcurrency int
	batchDryRun      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the weekly pipeline for every client in the roster",
	Long: `Processes the full client roster concurrently. A failing client
never aborts the batch; failures are logged and counted in the summary.
Use --batch-id with --size to process only one slice of the roster,
which lets a scheduler spread a large roster across several invocations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		workers := batchConcurrency
		if workers <= 0 {
			workers = cfg.Pipeline.Workers
		}

		summary, err := env.Orchestrator.RunBatch(ctx, pipeline.BatchOptions{
			Workers: workers,
			DryRun:  batchDryRun,
			BatchID: batchID,
			Size:    batchSize,
		})
		if err != nil {
			return err
		}
		zap.L().Info("batch complete",
			zap.Int("total", summary.Total),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed))
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchID, "batch-id", 0, "1-based roster slice to process (0 = whole roster)")
	batchCmd.Flags().IntVar(&batchSize, "size", 0, "clients per slice when --batch-id is set")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max clients processed in parallel (default from config)")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "build digests without delivering or persisting them")
	rootCmd.AddCommand(batchCmd)
}
