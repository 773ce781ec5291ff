// Package events defines the typed observability events emitted by the
// pipeline, replacing free-form log tags with a single structured surface.
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/weekly-intel/internal/model"
)

// Event is implemented by every pipeline event.
type Event interface {
	EventName() string
}

// Emitter receives pipeline events. Implementations must be safe for
// concurrent use.
type Emitter interface {
	Emit(ev Event)
}

// PolicyResolved records the outcome of policy resolution for a client.
type PolicyResolved struct {
	ClientID      string
	PolicyKey     string
	Source        string // "override" | "heuristic"
	Reason        string
	OverrideValue string
}

func (PolicyResolved) EventName() string { return "policy_resolved" }

// SectionMetrics reports per-section admission counts for telemetry.
type SectionMetrics struct {
	ClientID    string
	Section     model.Section
	PolicyKey   string
	Raw         int
	Denied      int
	Allowlisted int
	Fallback    int
	Admitted    int
}

func (SectionMetrics) EventName() string { return "section_metrics" }

// QuotaExhausted signals the search API returned a quota error; the section
// continues with whatever was already fetched.
type QuotaExhausted struct {
	ClientID string
	Section  model.Section
	Language string
}

func (QuotaExhausted) EventName() string { return "quota_exhausted" }

// LowCoverage signals a section fell below its policy threshold but the run
// proceeds with the reduced section.
type LowCoverage struct {
	ClientID  string
	Section   model.Section
	PolicyKey string
	Selected  int
	MinNeeded int
}

func (LowCoverage) EventName() string { return "low_source_coverage" }

// LowAllowlistRatio signals a fallback-heavy section admission.
type LowAllowlistRatio struct {
	ClientID  string
	Section   model.Section
	PolicyKey string
	Ratio     float64
	Threshold float64
}

func (LowAllowlistRatio) EventName() string { return "low_allowlist_ratio" }

// SynthesisFailed records a section whose model output could not be parsed
// even after the lenient recovery pass.
type SynthesisFailed struct {
	ClientID string
	Section  model.Section
	Reason   string
}

func (SynthesisFailed) EventName() string { return "synthesis_failed" }

// LinkRecovered records a fabricated URL rewritten to a real candidate URL.
type LinkRecovered struct {
	ClientID     string
	Section      model.Section
	ModelURL     string
	RecoveredURL string
}

func (LinkRecovered) EventName() string { return "link_recovered" }

// LinkDropped records an opportunity discarded on a confirmed dead link.
type LinkDropped struct {
	ClientID string
	Section  model.Section
	URL      string
	Status   string // "hard_404" | "soft_404"
}

func (LinkDropped) EventName() string { return "link_dropped" }

// RunStateChanged records a transition of the per-client state machine.
type RunStateChanged struct {
	ClientID string
	RunID    string
	State    model.RunState
	Error    string
}

func (RunStateChanged) EventName() string { return "run_state_changed" }

// ZapEmitter writes events as structured zap log entries.
type ZapEmitter struct{}

// NewZapEmitter returns an Emitter backed by the global zap logger.
func NewZapEmitter() *ZapEmitter { return &ZapEmitter{} }

func (e *ZapEmitter) Emit(ev Event) {
	log := zap.L().With(zap.String("event", ev.EventName()))
	switch v := ev.(type) {
	case PolicyResolved:
		log.Info("policy resolved",
			zap.String("client", v.ClientID),
			zap.String("policy", v.PolicyKey),
			zap.String("source", v.Source),
			zap.String("reason", v.Reason),
			zap.String("override", v.OverrideValue),
		)
	case SectionMetrics:
		log.Info("section metrics",
			zap.String("client", v.ClientID),
			zap.String("section", string(v.Section)),
			zap.String("policy", v.PolicyKey),
			zap.Int("raw", v.Raw),
			zap.Int("denied", v.Denied),
			zap.Int("allowlisted", v.Allowlisted),
			zap.Int("fallback", v.Fallback),
			zap.Int("admitted", v.Admitted),
		)
	case QuotaExhausted:
		log.Warn("search quota exhausted",
			zap.String("client", v.ClientID),
			zap.String("section", string(v.Section)),
			zap.String("language", v.Language),
		)
	case LowCoverage:
		log.Warn("low source coverage",
			zap.String("client", v.ClientID),
			zap.String("section", string(v.Section)),
			zap.String("policy", v.PolicyKey),
			zap.Int("selected", v.Selected),
			zap.Int("min_needed", v.MinNeeded),
		)
	case LowAllowlistRatio:
		log.Warn("low allowlist ratio",
			zap.String("client", v.ClientID),
			zap.String("section", string(v.Section)),
			zap.String("policy", v.PolicyKey),
			zap.Float64("ratio", v.Ratio),
			zap.Float64("threshold", v.Threshold),
		)
	case SynthesisFailed:
		log.Error("synthesis failed for section",
			zap.String("client", v.ClientID),
			zap.String("section", string(v.Section)),
			zap.String("reason", v.Reason),
		)
	case LinkRecovered:
		log.Info("link recovered",
			zap.String("client", v.ClientID),
			zap.String("section", string(v.Section)),
			zap.String("model_url", v.ModelURL),
			zap.String("recovered_url", v.RecoveredURL),
		)
	case LinkDropped:
		log.Warn("link dropped",
			zap.String("client", v.ClientID),
			zap.String("section", string(v.Section)),
			zap.String("url", v.URL),
			zap.String("status", v.Status),
		)
	case RunStateChanged:
		if v.Error != "" {
			log.Error("run state changed",
				zap.String("client", v.ClientID),
				zap.String("run_id", v.RunID),
				zap.String("state", string(v.State)),
				zap.String("error", v.Error),
			)
		} else {
			log.Info("run state changed",
				zap.String("client", v.ClientID),
				zap.String("run_id", v.RunID),
				zap.String("state", string(v.State)),
			)
		}
	default:
		log.Info("event")
	}
}

// CaptureEmitter records events in memory for assertions in tests.
type CaptureEmitter struct {
	mu     sync.Mutex
	events []Event
}

// NewCaptureEmitter returns an empty capturing emitter.
func NewCaptureEmitter() *CaptureEmitter { return &CaptureEmitter{} }

func (c *CaptureEmitter) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a copy of all captured events.
func (c *CaptureEmitter) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Named returns captured events matching the given event name.
func (c *CaptureEmitter) Named(name string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, ev := range c.events {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}
