// Package rewards turns consensus scores and contribution weights into
// payouts. Workers split the worker budget by quality times
// contribution; verifiers split the verifier budget by stake damped by
// their deviation from consensus, with outliers cut out entirely and
// flagged for slashing by the ledger layer.
package rewards

import (
	"math"
	"sort"

	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/consensus"
	"arbiter-backend/internal/errors"
)

const weightTolerance = 1e-9

// Engine computes payouts under one studio's dimension weighting.
type Engine struct {
	dims    []string
	weights map[string]float64
}

// NewEngine validates the per-dimension weights: non-negative and
// summing to one within tolerance.
func NewEngine(dimensionWeights map[string]float64) (*Engine, error) {
	if len(dimensionWeights) == 0 {
		return nil, errors.Config("WEIGHTS_MISSING", "dimension weights must not be empty").Build()
	}
	dims := make([]string, 0, len(dimensionWeights))
	weights := make(map[string]float64, len(dimensionWeights))
	sum := 0.0
	for d, w := range dimensionWeights {
		if w < 0 || math.IsNaN(w) {
			return nil, errors.Config("NEGATIVE_WEIGHT", "dimension weight must not be negative").
				WithDetails(map[string]interface{}{"dimension": d}).Build()
		}
		dims = append(dims, d)
		weights[d] = w
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, errors.Config("WEIGHTS_SUM", "dimension weights must sum to 1").
			WithDetails(map[string]interface{}{"sum": sum}).Build()
	}
	sort.Strings(dims)
	return &Engine{dims: dims, weights: weights}, nil
}

// Quality collapses a score vector into the studio's scalar quality in
// [0, 1]. Dimensions absent from the vector contribute nothing.
func (e *Engine) Quality(scores analytics.Vector) float64 {
	q := 0.0
	for _, d := range e.dims {
		q += e.weights[d] * scores[d] / 100
	}
	return q
}

// WorkerPayout is one participant's share of the worker budget.
type WorkerPayout struct {
	Participant  string  `json:"participant"`
	Quality      float64 `json:"quality"`
	Contribution float64 `json:"contribution"`
	Factor       float64 `json:"factor"`
	Amount       float64 `json:"amount"`
}

// WorkerSplit is the full division of a worker budget.
type WorkerSplit struct {
	Budget    float64        `json:"budget"`
	Allocated float64        `json:"allocated"`
	Unspent   float64        `json:"unspent"`
	Payouts   []WorkerPayout `json:"payouts"`
}

// SplitWorkers divides the budget across participants in proportion to
// quality times contribution weight. A round with no consensus cannot
// be split; when every factor is zero the budget is reported unspent
// rather than divided by zero.
func (e *Engine) SplitWorkers(outcome consensus.Outcome, contribution map[string]float64, budget float64) (WorkerSplit, error) {
	if budget < 0 {
		return WorkerSplit{}, invalidBudget(budget)
	}
	if outcome.Unscored {
		return WorkerSplit{}, noConsensus()
	}

	participants := make([]string, 0, len(outcome.Scores))
	for p := range outcome.Scores {
		participants = append(participants, p)
	}
	for p := range contribution {
		if _, ok := outcome.Scores[p]; !ok {
			participants = append(participants, p)
		}
	}
	sort.Strings(participants)

	split := WorkerSplit{Budget: budget, Payouts: make([]WorkerPayout, 0, len(participants))}
	total := 0.0
	for _, p := range participants {
		quality := e.Quality(outcome.Scores[p])
		payout := WorkerPayout{
			Participant:  p,
			Quality:      quality,
			Contribution: contribution[p],
			Factor:       quality * contribution[p],
		}
		total += payout.Factor
		split.Payouts = append(split.Payouts, payout)
	}

	if total <= 0 {
		split.Unspent = budget
		return split, nil
	}
	for i := range split.Payouts {
		amount := split.Payouts[i].Factor / total * budget
		split.Payouts[i].Amount = amount
		split.Allocated += amount
	}
	split.Unspent = budget - split.Allocated
	return split, nil
}

// VerifierPayout is one verifier's share of the verifier budget, or
// its slashing flag when consensus excluded it.
type VerifierPayout struct {
	Verifier       string  `json:"verifier"`
	Stake          float64 `json:"stake"`
	Deviation      float64 `json:"deviation"`
	Weight         float64 `json:"weight"`
	Amount         float64 `json:"amount"`
	Slashed        bool    `json:"slashed"`
	SlashMagnitude float64 `json:"slash_magnitude,omitempty"`
}

// VerifierSplit is the full division of a verifier budget.
type VerifierSplit struct {
	Budget    float64          `json:"budget"`
	Allocated float64          `json:"allocated"`
	Unspent   float64          `json:"unspent"`
	Payouts   []VerifierPayout `json:"payouts"`
}

// SplitVerifiers divides the budget across inlier verifiers weighted
// by stake and inversely by deviation from consensus. Outliers receive
// nothing and carry the slashing flag with the deviation as magnitude;
// executing the slash belongs to the ledger layer.
func (e *Engine) SplitVerifiers(outcome consensus.Outcome, budget float64) (VerifierSplit, error) {
	if budget < 0 {
		return VerifierSplit{}, invalidBudget(budget)
	}
	if outcome.Unscored {
		return VerifierSplit{}, noConsensus()
	}

	split := VerifierSplit{Budget: budget}
	total := 0.0
	for _, v := range outcome.Inliers {
		deviation := outcome.Deviations[v]
		payout := VerifierPayout{
			Verifier:  v,
			Stake:     outcome.Stakes[v],
			Deviation: deviation,
			Weight:    outcome.Stakes[v] / (1 + deviation),
		}
		total += payout.Weight
		split.Payouts = append(split.Payouts, payout)
	}
	for _, v := range outcome.Outliers {
		split.Payouts = append(split.Payouts, VerifierPayout{
			Verifier:       v,
			Stake:          outcome.Stakes[v],
			Deviation:      outcome.Deviations[v],
			Slashed:        true,
			SlashMagnitude: outcome.Deviations[v],
		})
	}
	sort.Slice(split.Payouts, func(i, j int) bool {
		return split.Payouts[i].Verifier < split.Payouts[j].Verifier
	})

	if total <= 0 {
		split.Unspent = budget
		return split, nil
	}
	for i := range split.Payouts {
		if split.Payouts[i].Slashed || split.Payouts[i].Weight == 0 {
			continue
		}
		amount := split.Payouts[i].Weight / total * budget
		split.Payouts[i].Amount = amount
		split.Allocated += amount
	}
	split.Unspent = budget - split.Allocated
	return split, nil
}

func invalidBudget(budget float64) error {
	return errors.Input("INVALID_BUDGET", "budget must not be negative").
		WithDetails(map[string]interface{}{"budget": budget}).Build()
}

func noConsensus() error {
	return errors.ConsensusGap("NO_CONSENSUS", "round settled without consensus; nothing to split").Build()
}
