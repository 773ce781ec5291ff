package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/weekly-intel/internal/digest"
	"github.com/sells-group/weekly-intel/internal/events"
	"github.com/sells-group/weekly-intel/internal/history"
	"github.com/sells-group/weekly-intel/internal/linkcheck"
	"github.com/sells-group/weekly-intel/internal/monitoring"
	"github.com/sells-group/weekly-intel/internal/notify"
	"github.com/sells-group/weekly-intel/internal/pipeline"
	"github.com/sells-group/weekly-intel/internal/profile"
	"github.com/sells-group/weekly-intel/internal/quality"
	"github.com/sells-group/weekly-intel/internal/search"
	"github.com/sells-group/weekly-intel/internal/synthesis"
	"github.com/sells-group/weekly-intel/pkg/anthropic"
	"github.com/sells-group/weekly-intel/pkg/cse"
)

// pipelineEnv bundles everything a command needs after wiring.
type pipelineEnv struct {
	Store        history.Store
	Profiles     profile.Provider
	Orchestrator *pipeline.Orchestrator
	Collector    *monitoring.Collector
}

func (e *pipelineEnv) Close() {
	_ = e.Store.Close()
}

func initStore(ctx context.Context) (history.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return history.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return history.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initRules() (*quality.Rules, error) {
	if cfg.Quality.RulesPath != "" {
		return quality.LoadRules(cfg.Quality.RulesPath)
	}
	return quality.DefaultRules()
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	rules, err := initRules()
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	profiles, err := profile.NewFileProvider(cfg.Clients.RosterPath)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	emitter := events.NewZapEmitter()

	searcher := search.New(
		cse.NewClient(cfg.Search.Key, cfg.Search.EngineID),
		rules,
		emitter,
		search.WithMaxPages(cfg.Search.MaxPages),
		search.WithWorkers(cfg.Search.Workers),
	)
	synth := synthesis.New(
		anthropic.NewClient(cfg.Anthropic.Key),
		synthesis.Config{Model: cfg.Anthropic.Model, MaxTokens: int64(cfg.Anthropic.MaxTokens)},
		emitter,
	)
	checker := linkcheck.NewChecker(linkcheck.NewValidator(), emitter, cfg.Pipeline.LinkCheckWorkers)

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL)
	}

	orch := pipeline.New(
		profiles,
		st,
		searcher,
		quality.NewFilter(rules, emitter),
		synth,
		checker,
		digest.New(emitter),
		notifier,
		emitter,
		pipeline.WithDeadline(time.Duration(cfg.Pipeline.DeadlineMins)*time.Minute),
	)

	return &pipelineEnv{
		Store:        st,
		Profiles:     profiles,
		Orchestrator: orch,
		Collector:    monitoring.NewCollector(st, profiles),
	}, nil
}
