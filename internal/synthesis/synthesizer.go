package synthesis

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/weekly-intel/internal/events"
	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/pkg/anthropic"
)

// Config controls the synthesis stage.
type Config struct {
	Model     string
	MaxTokens int64
}

// Synthesizer produces per-section opportunities from admitted candidates.
type Synthesizer struct {
	client  anthropic.Client
	cfg     Config
	emitter events.Emitter
}

// New creates a Synthesizer. Zero config fields fall back to defaults.
func New(client anthropic.Client, cfg Config, emitter events.Emitter) *Synthesizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Synthesizer{client: client, cfg: cfg, emitter: emitter}
}

// Model reports the model ID used for synthesis calls, for cost attribution.
func (s *Synthesizer) Model() string {
	return s.cfg.Model
}

// SectionResult is the outcome of one section's synthesis call. A failed
// section carries Degraded=true instead of aborting the run.
type SectionResult struct {
	Section       model.Section
	Opportunities []model.Opportunity
	Degraded      bool
	Usage         anthropic.TokenUsage
}

// SynthesizeSection runs one model call for a section and parses the
// output. Candidates must already be filtered and deduplicated.
func (s *Synthesizer) SynthesizeSection(ctx context.Context, profile model.ClientProfile, section model.Section, candidates []model.SourceCandidate, excludedTopics []string) (SectionResult, error) {
	result := SectionResult{Section: section}
	if len(candidates) == 0 {
		result.Degraded = true
		return result, nil
	}

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.cfg.Model,
		MaxTokens: s.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(SystemPrompt()),
		Messages: []anthropic.Message{
			{Role: "user", Content: BuildSectionPrompt(profile, section, candidates, excludedTopics)},
		},
	})
	if err != nil {
		return result, eris.Wrapf(err, "synthesis: section %s", section)
	}
	result.Usage = resp.Usage

	opportunities, err := Parse(resp.Text(), section)
	if err != nil {
		s.emitter.Emit(events.SynthesisFailed{
			ClientID: profile.ID,
			Section:  section,
			Reason:   eris.Cause(err).Error(),
		})
		result.Degraded = true
		return result, nil
	}

	result.Opportunities = restrictToCandidates(opportunities, candidates)
	return result, nil
}

// restrictToCandidates drops opportunities whose URL is not among the
// provided candidates. Those with fabricated URLs survive here only if the
// link checker can later recover them, so they are kept but the exact-match
// ones come first.
func restrictToCandidates(opportunities []model.Opportunity, candidates []model.SourceCandidate) []model.Opportunity {
	known := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		known[c.URL] = struct{}{}
	}

	exact := make([]model.Opportunity, 0, len(opportunities))
	var unmatched []model.Opportunity
	for _, o := range opportunities {
		if _, ok := known[o.URL]; ok {
			exact = append(exact, o)
		} else {
			unmatched = append(unmatched, o)
		}
	}
	return append(exact, unmatched...)
}
