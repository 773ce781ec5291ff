// Package pipeline drives the weekly per-client state machine: resolve,
// search, filter, dedupe, synthesize, validate, aggregate, persist, notify.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/weekly-intel/internal/dedupe"
	"github.com/sells-group/weekly-intel/internal/digest"
	"github.com/sells-group/weekly-intel/internal/events"
	"github.com/sells-group/weekly-intel/internal/history"
	"github.com/sells-group/weekly-intel/internal/linkcheck"
	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/notify"
	"github.com/sells-group/weekly-intel/internal/policy"
	"github.com/sells-group/weekly-intel/internal/profile"
	"github.com/sells-group/weekly-intel/internal/quality"
	"github.com/sells-group/weekly-intel/internal/search"
	"github.com/sells-group/weekly-intel/internal/synthesis"
	"github.com/sells-group/weekly-intel/pkg/anthropic"
)

// defaultDeadline bounds one client's run. On expiry the run proceeds with
// whatever the stages produced so far instead of failing outright.
const defaultDeadline = 10 * time.Minute

// maxExcludedTopics caps how many prior-digest titles the prompt carries.
const maxExcludedTopics = 30

// recentDigestWindow is how many past digests feed the excluded-topic list.
const recentDigestWindow = 4

// Orchestrator runs the weekly pipeline for one client at a time and fans
// the batch out across clients.
type Orchestrator struct {
	profiles profile.Provider
	store    history.Store
	searcher *search.Searcher
	filter   *quality.Filter
	synth    *synthesis.Synthesizer
	checker  *linkcheck.Checker
	agg      *digest.Aggregator
	notifier notify.Notifier
	emitter  events.Emitter
	deadline time.Duration
	now      func() time.Time
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithDeadline overrides the per-client run deadline.
func WithDeadline(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.deadline = d
		}
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New wires the pipeline's stages together.
func New(
	profiles profile.Provider,
	store history.Store,
	searcher *search.Searcher,
	filter *quality.Filter,
	synth *synthesis.Synthesizer,
	checker *linkcheck.Checker,
	agg *digest.Aggregator,
	notifier notify.Notifier,
	emitter events.Emitter,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		profiles: profiles,
		store:    store,
		searcher: searcher,
		filter:   filter,
		synth:    synth,
		checker:  checker,
		agg:      agg,
		notifier: notifier,
		emitter:  emitter,
		deadline: defaultDeadline,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// sectionState accumulates one section's counters across stages.
type sectionState struct {
	raw           int
	admitted      int
	quotaLimited  bool
	degraded      bool
	candidates    []model.SourceCandidate
	opportunities []model.Opportunity
}

// RunClient executes the full state machine for one client. A dry run goes
// through every stage but delivers nothing and records no history.
func (o *Orchestrator) RunClient(ctx context.Context, clientID string, dryRun bool) (*model.DigestPayload, error) {
	now := o.now()
	week := model.ISOWeek(now)

	run, err := o.store.CreateRun(ctx, clientID, week, dryRun)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: create run for client %s", clientID)
	}
	o.emitter.Emit(events.RunStateChanged{ClientID: clientID, RunID: run.ID, State: model.RunStateResolving})

	// Resolving: profile, policy and the lookback snapshot. Failures here
	// are systemic, the run cannot proceed.
	prof, err := o.profiles.Get(ctx, clientID)
	if err != nil {
		return nil, o.failRun(ctx, clientID, run.ID, err)
	}
	decision := policy.Resolve(prof)
	pol := decision.Policy
	o.emitter.Emit(events.PolicyResolved{
		ClientID:      clientID,
		PolicyKey:     pol.Key,
		Source:        decision.Source,
		Reason:        decision.Reason,
		OverrideValue: decision.OverrideValue,
	})

	recent, err := o.store.RecentKeys(ctx, clientID, dedupe.LookbackSince(now, pol.LookbackWeeks))
	if err != nil {
		return nil, o.failRun(ctx, clientID, run.ID, err)
	}
	excluded := o.excludedTopics(ctx, clientID)

	// Stages between search and validation share the per-client deadline;
	// each degrades to partial output when it expires.
	stageCtx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	o.setState(ctx, clientID, run.ID, model.RunStateSearching)
	results := o.searcher.Run(stageCtx, clientID, prof, pol)

	o.setState(ctx, clientID, run.ID, model.RunStateFiltering)
	states := make(map[model.Section]*sectionState, len(results))
	var admitted []model.SourceCandidate
	for _, section := range model.Sections() {
		r := results[section]
		st := &sectionState{
			raw:          len(r.Candidates),
			quotaLimited: r.QuotaLimited,
		}
		secAdmitted := o.filter.Filter(clientID, section, r.Candidates, pol)
		st.admitted = len(secAdmitted)
		admitted = append(admitted, secAdmitted...)
		states[section] = st
	}

	o.setState(ctx, clientID, run.ID, model.RunStateDeduplicating)
	novel := dedupe.FilterSeen(dedupe.Collapse(admitted), recent)
	bySection := make(map[model.Section][]model.SourceCandidate)
	for _, c := range novel {
		bySection[c.Section] = append(bySection[c.Section], c)
	}
	if minNeeded := pol.MinSelected(model.SectionAudience); len(bySection[model.SectionAudience]) < minNeeded {
		bySection[model.SectionAudience] = synthesis.BorrowForAudience(bySection, minNeeded)
	}
	for section, st := range states {
		st.candidates = bySection[section]
	}

	o.setState(ctx, clientID, run.ID, model.RunStateSynthesizing)
	var usage anthropic.TokenUsage
	for _, section := range model.Sections() {
		st := states[section]
		if len(st.candidates) == 0 {
			st.degraded = true
			continue
		}
		res, err := o.synth.SynthesizeSection(stageCtx, prof, section, st.candidates, excluded)
		if err != nil {
			// One section's model failure never takes the run down.
			zap.L().Warn("section synthesis failed",
				zap.String("client", clientID),
				zap.String("section", string(section)),
				zap.Error(err),
			)
			st.degraded = true
			continue
		}
		usage.Add(res.Usage)
		st.degraded = st.degraded || res.Degraded
		st.opportunities = res.Opportunities
	}
	if usage != (anthropic.TokenUsage{}) {
		usage.LogCost(o.synth.Model(), "synthesis")
	}

	o.setState(ctx, clientID, run.ID, model.RunStateValidating)
	for _, section := range model.Sections() {
		st := states[section]
		if len(st.opportunities) == 0 {
			continue
		}
		st.opportunities = o.checker.ValidateAndRecover(stageCtx, clientID, st.opportunities, st.candidates, recent)
	}

	o.setState(ctx, clientID, run.ID, model.RunStateAggregating)
	inputs := make(map[model.Section]digest.SectionInput, len(states))
	for section, st := range states {
		inputs[section] = digest.SectionInput{
			Section:       section,
			Opportunities: st.opportunities,
			Raw:           st.raw,
			Admitted:      st.admitted,
			QuotaLimited:  st.quotaLimited,
			Degraded:      st.degraded,
		}
	}
	payload := o.agg.Aggregate(clientID, now, inputs, pol)

	// Persisting: deliver first, then record. History rows exist only for
	// digests that actually went out.
	o.setState(ctx, clientID, run.ID, model.RunStatePersisting)
	if dryRun {
		if err := (notify.NopNotifier{}).Send(ctx, payload); err != nil {
			return nil, o.failRun(ctx, clientID, run.ID, err)
		}
		o.setState(ctx, clientID, run.ID, model.RunStateNotified)
		return payload, nil
	}

	if err := o.notifier.Send(ctx, payload); err != nil {
		return nil, o.failRun(ctx, clientID, run.ID, err)
	}
	if err := o.store.AppendEntries(ctx, digest.HistoryEntries(payload)); err != nil {
		return payload, o.failRun(ctx, clientID, run.ID, err)
	}
	if err := o.store.SaveDigest(ctx, payload); err != nil {
		return payload, o.failRun(ctx, clientID, run.ID, err)
	}

	o.setState(ctx, clientID, run.ID, model.RunStateNotified)
	return payload, nil
}

// excludedTopics collects titles from the client's recent digests so the
// model does not resurface last month's angles. Best effort.
func (o *Orchestrator) excludedTopics(ctx context.Context, clientID string) []string {
	digests, err := o.store.ListDigests(ctx, clientID, recentDigestWindow)
	if err != nil {
		zap.L().Warn("listing recent digests failed",
			zap.String("client", clientID),
			zap.Error(err),
		)
		return nil
	}

	var topics []string
	for _, d := range digests {
		for _, opp := range d.Opportunities() {
			if opp.Title == "" {
				continue
			}
			topics = append(topics, opp.Title)
			if len(topics) >= maxExcludedTopics {
				return topics
			}
		}
	}
	return topics
}

func (o *Orchestrator) setState(ctx context.Context, clientID, runID string, state model.RunState) {
	o.emitter.Emit(events.RunStateChanged{ClientID: clientID, RunID: runID, State: state})
	if err := o.store.UpdateRunState(ctx, runID, state, ""); err != nil {
		zap.L().Warn("run state update failed",
			zap.String("run_id", runID),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) failRun(ctx context.Context, clientID, runID string, cause error) error {
	o.emitter.Emit(events.RunStateChanged{
		ClientID: clientID,
		RunID:    runID,
		State:    model.RunStateFailed,
		Error:    cause.Error(),
	})
	if err := o.store.UpdateRunState(ctx, runID, model.RunStateFailed, cause.Error()); err != nil {
		zap.L().Warn("recording run failure failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
	return eris.Wrapf(cause, "pipeline: run %s for client %s", runID, clientID)
}
