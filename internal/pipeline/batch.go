package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/weekly-intel/internal/model"
)

// defaultBatchWorkers bounds how many clients run at once.
const defaultBatchWorkers = 4

// BatchOptions controls one weekly batch invocation.
type BatchOptions struct {
	// Workers bounds concurrent client runs. Zero means the default.
	Workers int
	// DryRun runs every stage but delivers and records nothing.
	DryRun bool
	// BatchID selects a 1-based roster slice of Size clients, so large
	// rosters can be split across scheduled invocations. Zero runs all.
	BatchID int
	Size    int
}

// BatchSummary reports the outcome of one weekly batch.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RunBatch runs the pipeline for every client in the selected roster slice
// with a bounded worker pool. One client's failure is logged and counted,
// never propagated to the others; the returned error covers roster access
// only.
func (o *Orchestrator) RunBatch(ctx context.Context, opts BatchOptions) (BatchSummary, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultBatchWorkers
	}

	profiles, err := o.profiles.List(ctx)
	if err != nil {
		return BatchSummary{}, eris.Wrap(err, "pipeline: list clients")
	}
	profiles = sliceBatch(profiles, opts.BatchID, opts.Size)

	var failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, prof := range profiles {
		g.Go(func() error {
			if _, err := o.RunClient(ctx, prof.ID, opts.DryRun); err != nil {
				failed.Add(1)
				zap.L().Error("client run failed",
					zap.String("client", prof.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	summary := BatchSummary{
		Total:     len(profiles),
		Failed:    int(failed.Load()),
		Succeeded: len(profiles) - int(failed.Load()),
	}
	zap.L().Info("weekly batch finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Bool("dry_run", opts.DryRun),
	)
	return summary, nil
}

func sliceBatch(profiles []model.ClientProfile, batchID, size int) []model.ClientProfile {
	if batchID <= 0 || size <= 0 {
		return profiles
	}
	start := (batchID - 1) * size
	if start >= len(profiles) {
		return nil
	}
	end := start + size
	if end > len(profiles) {
		end = len(profiles)
	}
	return profiles[start:end]
}
