package model

import (
	"fmt"
	"time"
)

// RunState represents the current stage of a client's weekly run.
type RunState string

const (
	RunStateResolving     RunState = "resolving"
	RunStateSearching     RunState = "searching"
	RunStateFiltering     RunState = "filtering"
	RunStateDeduplicating RunState = "deduplicating"
	RunStateSynthesizing  RunState = "synthesizing"
	RunStateValidating    RunState = "validating"
	RunStateAggregating   RunState = "aggregating"
	RunStatePersisting    RunState = "persisting"
	RunStateNotified      RunState = "notified"
	RunStateFailed        RunState = "failed"
)

// ClientProfile is the read-only business profile a run is generated for.
// It is provided by an external profile store; the pipeline never writes it.
type ClientProfile struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	Specialization string `json:"specialization" yaml:"specialization"`
	Description    string `json:"description" yaml:"description"`
	Audience       string `json:"audience" yaml:"audience"`
	// PolicyOverride pins a policy key for this client. It is validated
	// against the policy registry at resolve time, never trusted blindly.
	PolicyOverride string `json:"policy_override,omitempty" yaml:"policy_override,omitempty"`
}

// Run records one weekly pipeline execution for a client.
type Run struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	State     RunState  `json:"state"`
	Week      string    `json:"week"` // ISO week, e.g. "2026-W35"
	DryRun    bool      `json:"dry_run,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ISOWeek formats t's ISO year and week as "2026-W35".
func ISOWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
