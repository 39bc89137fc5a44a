package analytics

import (
	"sort"
	"time"

	"arbiter-backend/internal/domain/dkg"
)

// Standard dimension names, in canonical vector order.
const (
	DimensionInitiative     = "initiative"
	DimensionCollaboration  = "collaboration"
	DimensionReasoningDepth = "reasoning_depth"
	DimensionCompliance     = "compliance"
	DimensionEfficiency     = "efficiency"
)

// depthCap is the reasoning depth treated as maximal. Average causal
// depth at or past the cap scores 1.0 before scaling.
const depthCap = 10.0

// idleWindow is the gap at which responsiveness reaches zero.
const idleWindow = time.Hour

// StandardDimensions returns the five built-in dimension names in
// canonical order.
func StandardDimensions() []string {
	return []string{
		DimensionInitiative,
		DimensionCollaboration,
		DimensionReasoningDepth,
		DimensionCompliance,
		DimensionEfficiency,
	}
}

// PolicyFunc scores a participant's compliance with studio rules in
// [0, 1]. The default policy scores everyone 1.0.
type PolicyFunc func(g *dkg.Graph, participant string) float64

// Vector holds one participant's scores keyed by dimension name, each
// scaled into [0, 100].
type Vector map[string]float64

// ScoreSet maps participant to score vector.
type ScoreSet map[string]Vector

// Scorer computes score vectors over a frozen graph. Construct with
// NewScorer; a scorer referencing an unregistered custom dimension is
// rejected before anything runs.
type Scorer struct {
	policy      PolicyFunc
	customNames []string
	customFuncs []DimensionFunc
}

// Option configures a Scorer.
type Option func(*scorerConfig)

type scorerConfig struct {
	policy   PolicyFunc
	registry *Registry
	enabled  []string
}

// WithCompliancePolicy replaces the default all-compliant policy.
func WithCompliancePolicy(policy PolicyFunc) Option {
	return func(c *scorerConfig) { c.policy = policy }
}

// WithCustomDimensions enables named dimensions from the registry.
func WithCustomDimensions(registry *Registry, names ...string) Option {
	return func(c *scorerConfig) {
		c.registry = registry
		c.enabled = names
	}
}

// NewScorer builds a scorer, validating every referenced dimension.
func NewScorer(opts ...Option) (*Scorer, error) {
	cfg := &scorerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Scorer{policy: cfg.policy}
	if s.policy == nil {
		s.policy = func(*dkg.Graph, string) float64 { return 1.0 }
	}

	if len(cfg.enabled) > 0 {
		if cfg.registry == nil {
			cfg.registry = NewRegistry()
		}
		names, funcs, err := cfg.registry.resolve(cfg.enabled)
		if err != nil {
			return nil, err
		}
		s.customNames = names
		s.customFuncs = funcs
	}
	return s, nil
}

// Dimensions returns the full ordered dimension list this scorer
// produces: the five standard dimensions, then customs in registration
// order.
func (s *Scorer) Dimensions() []string {
	out := StandardDimensions()
	return append(out, s.customNames...)
}

// Score computes the vector of every participant in the graph.
func (s *Scorer) Score(g *dkg.Graph) ScoreSet {
	set := make(ScoreSet, len(g.Authors()))
	depths := g.Depths()
	for _, participant := range g.Authors() {
		set[participant] = s.scoreParticipant(g, participant, depths)
	}
	return set
}

func (s *Scorer) scoreParticipant(g *dkg.Graph, participant string, depths map[string]int) Vector {
	v := Vector{
		DimensionInitiative:     scale(initiative(g, participant)),
		DimensionCollaboration:  scale(collaboration(g, participant)),
		DimensionReasoningDepth: scale(reasoningDepth(g, participant, depths)),
		DimensionCompliance:     scale(clamp01(s.policy(g, participant))),
		DimensionEfficiency:     scale(efficiency(g, participant)),
	}
	for i, name := range s.customNames {
		v[name] = scale(clamp01(s.customFuncs[i](g, participant)))
	}
	return v
}

// initiative is the fraction of the participant's nodes that start a
// causal line, i.e. have no parents.
func initiative(g *dkg.Graph, participant string) float64 {
	own := g.NodesByAuthor(participant)
	if len(own) == 0 {
		return 0
	}
	started := 0
	for _, n := range own {
		if n.IsRoot() {
			started++
		}
	}
	return float64(started) / float64(len(own))
}

// collaboration is the complement of initiative: the fraction of the
// participant's nodes that build on prior work.
func collaboration(g *dkg.Graph, participant string) float64 {
	own := g.NodesByAuthor(participant)
	if len(own) == 0 {
		return 0
	}
	return 1 - initiative(g, participant)
}

// reasoningDepth is the participant's mean causal depth normalized by
// depthCap and clamped to 1.
func reasoningDepth(g *dkg.Graph, participant string, depths map[string]int) float64 {
	own := g.NodesByAuthor(participant)
	if len(own) == 0 {
		return 0
	}
	total := 0
	for _, n := range own {
		total += depths[n.ID()]
	}
	avg := float64(total) / float64(len(own))
	return clamp01(avg / depthCap)
}

// efficiency measures responsiveness from the mean gap between the
// participant's consecutive contributions. A lone contribution scores
// 1.0; the score decays linearly to zero across the idle window.
func efficiency(g *dkg.Graph, participant string) float64 {
	own := g.NodesByAuthor(participant)
	if len(own) == 0 {
		return 0
	}
	if len(own) == 1 {
		return 1.0
	}

	times := make([]time.Time, len(own))
	for i, n := range own {
		times[i] = n.Timestamp()
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	var totalGap time.Duration
	for i := 1; i < len(times); i++ {
		totalGap += times[i].Sub(times[i-1])
	}
	avgGap := totalGap / time.Duration(len(times)-1)

	score := 1.0 - avgGap.Seconds()/idleWindow.Seconds()
	if score < 0 {
		return 0
	}
	return score
}

func scale(v float64) float64 {
	return v * 100
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
