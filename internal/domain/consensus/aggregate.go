// Package consensus combines independent verifiers' score submissions
// into one robust result per participant. Submissions arrive through a
// commit-reveal round so verifiers cannot copy each other, and the
// aggregation uses median and MAD statistics so a dishonest minority
// cannot drag the consensus, only forfeit its own reward.
package consensus

import (
	"sort"
	"time"

	"arbiter-backend/internal/domain/analytics"
)

// Submission is one verifier's revealed scoring of a round: a full
// score matrix covering every participant and dimension the round
// asked for.
type Submission struct {
	Verifier   string             `json:"verifier"`
	Stake      float64            `json:"stake"`
	Scores     analytics.ScoreSet `json:"scores"`
	RevealedAt time.Time          `json:"revealed_at"`
}

// Outcome is the aggregated result of one consensus round.
//
// Classification is per verifier, not per cell: a verifier's deviation
// is the mean absolute distance of their whole matrix from the
// cell-wise medians, and the inlier threshold is a configured multiple
// of the median of those deviations. This gives the reward layer a
// single inlier/outlier verdict and slash magnitude per verifier.
type Outcome struct {
	Dimensions   []string `json:"dimensions"`
	Participants []string `json:"participants"`

	// Scores holds the consensus vector per participant, the
	// stake-weighted mean over inlier submissions.
	Scores analytics.ScoreSet `json:"scores"`

	// MAD is the median absolute deviation across verifiers.
	MAD float64 `json:"mad"`

	// Deviations maps each verifier to its mean absolute deviation
	// from the cell-wise medians.
	Deviations map[string]float64 `json:"deviations"`

	// Stakes carries the stake each verifier submitted under.
	Stakes map[string]float64 `json:"stakes"`

	Inliers  []string `json:"inliers"`
	Outliers []string `json:"outliers"`

	// Unscored marks a round with no revealed submissions. Callers
	// must treat this distinctly from a consensus of zero.
	Unscored bool `json:"unscored"`
}

// Aggregate folds the revealed submissions into a consensus outcome.
// madMultiple is the inlier threshold as a multiple of the MAD; with
// MAD zero only verifiers matching the medians exactly stay in.
//
// The result is deterministic in the order of dims and participants
// and independent of submission order.
func Aggregate(dims, participants []string, subs []Submission, madMultiple float64) Outcome {
	out := Outcome{
		Dimensions:   append([]string(nil), dims...),
		Participants: append([]string(nil), participants...),
		Scores:       analytics.ScoreSet{},
		Deviations:   map[string]float64{},
		Stakes:       map[string]float64{},
	}
	if len(subs) == 0 {
		out.Unscored = true
		return out
	}

	medians := cellMedians(dims, participants, subs)

	for _, sub := range subs {
		out.Stakes[sub.Verifier] = sub.Stake
		out.Deviations[sub.Verifier] = deviation(dims, participants, sub.Scores, medians)
	}

	devs := make([]float64, 0, len(subs))
	for _, sub := range subs {
		devs = append(devs, out.Deviations[sub.Verifier])
	}
	out.MAD = median(devs)

	threshold := madMultiple * out.MAD
	inliers := make([]Submission, 0, len(subs))
	for _, sub := range subs {
		if out.Deviations[sub.Verifier] <= threshold {
			out.Inliers = append(out.Inliers, sub.Verifier)
			inliers = append(inliers, sub)
		} else {
			out.Outliers = append(out.Outliers, sub.Verifier)
		}
	}
	sort.Strings(out.Inliers)
	sort.Strings(out.Outliers)

	if len(inliers) == 0 {
		out.Unscored = true
		return out
	}

	for _, p := range participants {
		vector := analytics.Vector{}
		for _, d := range dims {
			if v, ok := weightedMean(p, d, inliers); ok {
				vector[d] = v
			}
		}
		out.Scores[p] = vector
	}
	return out
}

// cellMedians computes the per-cell median over every submission that
// scored the cell.
func cellMedians(dims, participants []string, subs []Submission) analytics.ScoreSet {
	medians := analytics.ScoreSet{}
	for _, p := range participants {
		row := analytics.Vector{}
		for _, d := range dims {
			values := make([]float64, 0, len(subs))
			for _, sub := range subs {
				if v, ok := cell(sub.Scores, p, d); ok {
					values = append(values, v)
				}
			}
			if len(values) > 0 {
				row[d] = median(values)
			}
		}
		medians[p] = row
	}
	return medians
}

// deviation is the mean absolute distance of one submission from the
// cell-wise medians, over the cells the submission actually scored.
func deviation(dims, participants []string, scores, medians analytics.ScoreSet) float64 {
	var sum float64
	var counted int
	for _, p := range participants {
		for _, d := range dims {
			v, ok := cell(scores, p, d)
			if !ok {
				continue
			}
			m, ok := cell(medians, p, d)
			if !ok {
				continue
			}
			diff := v - m
			if diff < 0 {
				diff = -diff
			}
			sum += diff
			counted++
		}
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

// weightedMean is the stake-weighted mean of one cell over the inlier
// submissions. When no inlier carries any stake, every inlier counts
// equally rather than dividing by zero.
func weightedMean(participant, dim string, inliers []Submission) (float64, bool) {
	var weighted, totalStake float64
	var plain float64
	var counted int
	for _, sub := range inliers {
		v, ok := cell(sub.Scores, participant, dim)
		if !ok {
			continue
		}
		weighted += v * sub.Stake
		totalStake += sub.Stake
		plain += v
		counted++
	}
	if counted == 0 {
		return 0, false
	}
	if totalStake <= 0 {
		return plain / float64(counted), true
	}
	return weighted / totalStake, true
}

func cell(scores analytics.ScoreSet, participant, dim string) (float64, bool) {
	row, ok := scores[participant]
	if !ok {
		return 0, false
	}
	v, ok := row[dim]
	return v, ok
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
