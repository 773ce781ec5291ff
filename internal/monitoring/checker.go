package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/weekly-intel/internal/config"
)

// Checker watches run health in the background: on every tick it snapshots
// run and digest metrics, evaluates the alert rules and pushes anything
// that fires to the monitoring webhook.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run blocks until ctx is cancelled, sweeping on a fixed interval.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().Named("monitoring")
	log.Info("run health checks started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("run health checks stopped")
			return
		case <-ticker.C:
			c.sweep(ctx, log)
		}
	}
}

// sweep performs one collect-evaluate-send pass. Collection failures are
// logged and skipped; the next tick retries with a fresh snapshot.
func (c *Checker) sweep(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackHours)
	if err != nil {
		log.Warn("run metrics collection failed", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("run health nominal",
			zap.Int("runs", snap.RunsTotal),
			zap.Float64("fail_rate", snap.RunFailRate),
		)
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("run health alerts raised",
		zap.Int("raised", len(alerts)),
		zap.Int("delivered", sent),
		zap.Float64("fail_rate", snap.RunFailRate),
		zap.String("week", snap.Week),
	)
}
