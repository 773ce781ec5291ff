package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runClient string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the weekly pipeline for a single client",
	Long: `Resolves the client's policy, searches curated sources in both
languages, synthesizes content opportunities and delivers the digest
to the configured webhook. With --dry-run the digest is built but not
delivered and nothing is recorded in history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("starting run", zap.String("client", runClient), zap.Bool("dry_run", runDryRun))
		payload, err := env.Orchestrator.RunClient(ctx, runClient, runDryRun)
		if err != nil {
			return err
		}
		zap.L().Info("run complete",
			zap.String("client", runClient),
			zap.String("week", payload.Week),
			zap.Int("opportunities", len(payload.Opportunities())))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runClient, "client", "", "client ID from the roster (required)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "build the digest without delivering or persisting it")
	runCmd.MarkFlagRequired("client") //nolint:errcheck
	rootCmd.AddCommand(runCmd)
}
