// Package studio models the economic context consensus rounds run in:
// which dimensions count for what, how strict outlier exclusion is, how
// long verifiers get to commit and reveal, and how the reward budget is
// split. A studio that fails validation never reaches the pipeline.
package studio

import (
	"math"
	"time"

	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/attribution"
	"arbiter-backend/internal/errors"
)

// weightTolerance bounds the acceptable drift of the dimension weight
// sum from 1.0.
const weightTolerance = 1e-9

// Defaults applied by New when a parameter is left zero.
const (
	DefaultMADMultiple  = 3.0
	DefaultCommitWindow = time.Hour
	DefaultRevealWindow = time.Hour
	DefaultWorkerSplit  = 0.8
)

// Params carries the raw studio configuration before validation.
type Params struct {
	ID               string
	Name             string
	DimensionWeights map[string]float64
	CustomDimensions []string
	MADMultiple      float64
	CommitWindow     time.Duration
	RevealWindow     time.Duration
	MinVerifierStake float64
	AttributionMode  string
	WorkerSplit      float64
	RequireSignature bool
}

// Studio is a validated studio configuration. Construct with New.
type Studio struct {
	ID               string
	Name             string
	DimensionWeights map[string]float64
	CustomDimensions []string
	MADMultiple      float64
	CommitWindow     time.Duration
	RevealWindow     time.Duration
	MinVerifierStake float64
	AttributionMode  attribution.Method
	WorkerSplit      float64
	RequireSignature bool
}

// New validates params into a Studio. All violations are configuration
// errors; nothing is silently corrected except documented defaults for
// parameters left unset.
func New(p Params) (*Studio, error) {
	if p.ID == "" {
		return nil, errors.Config("STUDIO_ID", "studio id must not be empty").Build()
	}

	if p.MADMultiple == 0 {
		p.MADMultiple = DefaultMADMultiple
	}
	if p.MADMultiple < 0 {
		return nil, errors.Config("BAD_MAD_MULTIPLE", "MAD multiple must be positive").
			WithResource(p.ID).Build()
	}
	if p.CommitWindow == 0 {
		p.CommitWindow = DefaultCommitWindow
	}
	if p.RevealWindow == 0 {
		p.RevealWindow = DefaultRevealWindow
	}
	if p.CommitWindow < 0 || p.RevealWindow < 0 {
		return nil, errors.Config("BAD_WINDOW", "commit and reveal windows must be positive").
			WithResource(p.ID).Build()
	}
	if p.WorkerSplit == 0 {
		p.WorkerSplit = DefaultWorkerSplit
	}
	if p.WorkerSplit < 0 || p.WorkerSplit > 1 {
		return nil, errors.Config("BAD_SPLIT", "worker split must lie in [0,1]").
			WithResource(p.ID).Build()
	}
	if p.MinVerifierStake < 0 {
		return nil, errors.Config("BAD_MIN_STAKE", "minimum stake must not be negative").
			WithResource(p.ID).Build()
	}

	mode := p.AttributionMode
	if mode == "" {
		mode = string(attribution.MethodBetweenness)
	}
	method, err := attribution.ParseMethod(mode)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool)
	for _, d := range analytics.StandardDimensions() {
		known[d] = true
	}
	for _, d := range p.CustomDimensions {
		known[d] = true
	}

	if len(p.DimensionWeights) == 0 {
		return nil, errors.Config("WEIGHTS_MISSING", "studio must weight at least one dimension").
			WithResource(p.ID).Build()
	}
	var sum float64
	for dim, w := range p.DimensionWeights {
		if !known[dim] {
			return nil, errors.Config("UNKNOWN_DIMENSION", "weighted dimension is not declared").
				WithResource(dim).Build()
		}
		if w < 0 {
			return nil, errors.Config("NEGATIVE_WEIGHT", "dimension weights must not be negative").
				WithResource(dim).Build()
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return nil, errors.Config("WEIGHTS_SUM", "dimension weights must sum to 1").
			WithResource(p.ID).
			WithDetails(map[string]interface{}{"sum": sum}).Build()
	}

	weights := make(map[string]float64, len(p.DimensionWeights))
	for dim, w := range p.DimensionWeights {
		weights[dim] = w
	}
	customs := make([]string, len(p.CustomDimensions))
	copy(customs, p.CustomDimensions)

	return &Studio{
		ID:               p.ID,
		Name:             p.Name,
		DimensionWeights: weights,
		CustomDimensions: customs,
		MADMultiple:      p.MADMultiple,
		CommitWindow:     p.CommitWindow,
		RevealWindow:     p.RevealWindow,
		MinVerifierStake: p.MinVerifierStake,
		AttributionMode:  method,
		WorkerSplit:      p.WorkerSplit,
		RequireSignature: p.RequireSignature,
	}, nil
}

// Dimensions returns the studio's full ordered dimension list: the
// standard five, then the declared customs.
func (s *Studio) Dimensions() []string {
	dims := analytics.StandardDimensions()
	return append(dims, s.CustomDimensions...)
}

// VerifierBudget returns the share of an escrow reserved for verifiers.
func (s *Studio) VerifierBudget(total float64) float64 {
	return total * (1 - s.WorkerSplit)
}

// WorkerBudget returns the share of an escrow paid to workers.
func (s *Studio) WorkerBudget(total float64) float64 {
	return total * s.WorkerSplit
}
