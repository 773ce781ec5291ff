package model

import "time"

// Category is the canonical content category of an opportunity.
type Category string

const (
	CategoryDebate        Category = "debate"
	CategoryEducational   Category = "educational"
	CategoryNewsjacking   Category = "newsjacking"
	CategoryEntertainment Category = "entertainment"
	CategoryCaseStudy     Category = "case_study"
	CategoryTrend         Category = "trend"
	CategoryOther         Category = "other"
)

// Opportunity is the unit emitted in a digest: one suggested content angle
// backed by a validated source URL.
type Opportunity struct {
	Category  Category `json:"category"`
	Title     string   `json:"title"`
	Rationale string   `json:"rationale"`
	URL       string   `json:"url"`
	Score     int      `json:"score"` // 0-100
	Section   Section  `json:"section"`
}

// SectionCoverage counts candidates surviving each stage for one section.
type SectionCoverage struct {
	Raw      int `json:"raw"`
	Admitted int `json:"admitted"`
	Final    int `json:"final"`
}

// DigestSection is one ordered section of a finished digest.
type DigestSection struct {
	Name          Section         `json:"name"`
	Opportunities []Opportunity   `json:"opportunities"`
	Coverage      SectionCoverage `json:"coverage"`
	QuotaLimited  bool            `json:"quota_limited,omitempty"`
	Degraded      bool            `json:"degraded,omitempty"`
}

// DigestPayload is the finished weekly digest handed to the Notifier.
type DigestPayload struct {
	ClientID    string          `json:"client_id"`
	Week        string          `json:"week"`
	GeneratedAt time.Time       `json:"generated_at"`
	Sections    []DigestSection `json:"sections"`
}

// Opportunities returns all opportunities across sections in digest order.
func (d *DigestPayload) Opportunities() []Opportunity {
	var all []Opportunity
	for _, s := range d.Sections {
		all = append(all, s.Opportunities...)
	}
	return all
}

// HistoryEntry records one (client, domain, path) surfaced in a sent digest.
// Entries are append-only and consulted only for lookback filtering.
type HistoryEntry struct {
	ClientID string    `json:"client_id"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Section  Section   `json:"section"`
	SeenAt   time.Time `json:"seen_at"`
}
