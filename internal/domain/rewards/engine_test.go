package rewards

import (
	"math"
	"testing"

	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/consensus"
	"arbiter-backend/internal/errors"
)

func approx(a, b float64) bool { return math.Abs(a-b) <= 1e-9 }

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(map[string]float64{"accuracy": 0.6, "speed": 0.4})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := errors.CodeOf(err); got != code {
		t.Fatalf("expected code %s, got %s (%v)", code, got, err)
	}
}

func TestNewEngine_Validation(t *testing.T) {
	cases := []struct {
		name    string
		weights map[string]float64
		code    string
	}{
		{"no weights", nil, "WEIGHTS_MISSING"},
		{"negative weight", map[string]float64{"accuracy": 1.2, "speed": -0.2}, "NEGATIVE_WEIGHT"},
		{"sum below one", map[string]float64{"accuracy": 0.5, "speed": 0.4}, "WEIGHTS_SUM"},
		{"sum above one", map[string]float64{"accuracy": 0.7, "speed": 0.4}, "WEIGHTS_SUM"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEngine(tc.weights)
			wantCode(t, err, tc.code)
			if !errors.IsConfig(err) {
				t.Errorf("weight rejection must be a config error, got %v", err)
			}
		})
	}

	thirds := map[string]float64{"a": 1.0 / 3, "b": 1.0 / 3, "c": 1.0 / 3}
	if _, err := NewEngine(thirds); err != nil {
		t.Errorf("rounding noise within tolerance must be accepted, got %v", err)
	}
}

func TestQuality(t *testing.T) {
	e := testEngine(t)

	if q := e.Quality(analytics.Vector{"accuracy": 80, "speed": 50}); !approx(q, 0.68) {
		t.Errorf("quality: got %v, want 0.68", q)
	}
	if q := e.Quality(analytics.Vector{"accuracy": 100}); !approx(q, 0.6) {
		t.Errorf("a missing dimension must contribute nothing: got %v, want 0.6", q)
	}
	if q := e.Quality(nil); q != 0 {
		t.Errorf("empty vector quality: got %v, want 0", q)
	}
}

func TestSplitWorkers_ProportionalAndConserved(t *testing.T) {
	e := testEngine(t)
	outcome := consensus.Outcome{Scores: analytics.ScoreSet{
		"alice": {"accuracy": 80, "speed": 50},
		"bob":   {"accuracy": 40, "speed": 100},
		"carol": {"accuracy": 100, "speed": 100},
	}}
	contribution := map[string]float64{"alice": 0.5, "bob": 0.3, "carol": 0.2}

	split, err := e.SplitWorkers(outcome, contribution, 1000)
	if err != nil {
		t.Fatalf("SplitWorkers: %v", err)
	}

	if len(split.Payouts) != 3 {
		t.Fatalf("expected 3 payouts, got %d", len(split.Payouts))
	}
	var sum float64
	byName := map[string]WorkerPayout{}
	for _, p := range split.Payouts {
		sum += p.Amount
		byName[p.Participant] = p
	}
	if !approx(sum, 1000) {
		t.Errorf("payouts must conserve the budget: got %v", sum)
	}
	if !approx(split.Allocated+split.Unspent, 1000) {
		t.Errorf("allocated %v plus unspent %v must equal the budget", split.Allocated, split.Unspent)
	}
	if !approx(byName["alice"].Factor, 0.34) {
		t.Errorf("alice factor: got %v, want 0.34", byName["alice"].Factor)
	}
	if !(byName["alice"].Amount > byName["carol"].Amount && byName["carol"].Amount > byName["bob"].Amount) {
		t.Errorf("payout order must follow the factors, got %+v", split.Payouts)
	}
}

func TestSplitWorkers_LopsidedParticipants(t *testing.T) {
	e := testEngine(t)
	outcome := consensus.Outcome{Scores: analytics.ScoreSet{
		"alice":  {"accuracy": 100, "speed": 100},
		"scored": {"accuracy": 90, "speed": 90},
	}}
	// dave contributed but was never scored; "scored" has no
	// contribution weight. Neither earns, but both appear.
	contribution := map[string]float64{"alice": 0.6, "dave": 0.4}

	split, err := e.SplitWorkers(outcome, contribution, 500)
	if err != nil {
		t.Fatalf("SplitWorkers: %v", err)
	}
	byName := map[string]WorkerPayout{}
	for _, p := range split.Payouts {
		byName[p.Participant] = p
	}
	if len(byName) != 3 {
		t.Fatalf("expected 3 payout rows, got %+v", split.Payouts)
	}
	if byName["dave"].Amount != 0 || byName["scored"].Amount != 0 {
		t.Error("participants missing a score or a weight must earn nothing")
	}
	if !approx(byName["alice"].Amount, 500) {
		t.Errorf("the only complete participant takes the budget: got %v", byName["alice"].Amount)
	}
}

func TestSplitWorkers_AllFactorsZero(t *testing.T) {
	e := testEngine(t)
	outcome := consensus.Outcome{Scores: analytics.ScoreSet{
		"alice": {"accuracy": 80, "speed": 50},
	}}

	split, err := e.SplitWorkers(outcome, map[string]float64{}, 750)
	if err != nil {
		t.Fatalf("SplitWorkers: %v", err)
	}
	if !approx(split.Unspent, 750) || split.Allocated != 0 {
		t.Errorf("zero factors must leave the budget unspent, got %+v", split)
	}
	for _, p := range split.Payouts {
		if p.Amount != 0 {
			t.Errorf("no payout expected, got %+v", p)
		}
	}
}

func TestSplitWorkers_RejectsUnscoredOutcome(t *testing.T) {
	e := testEngine(t)
	_, err := e.SplitWorkers(consensus.Outcome{Unscored: true}, nil, 100)
	wantCode(t, err, "NO_CONSENSUS")
	if !errors.IsConsensusGap(err) {
		t.Errorf("unscored split must be a consensus gap, got %v", err)
	}
}

func TestSplitWorkers_RejectsNegativeBudget(t *testing.T) {
	e := testEngine(t)
	_, err := e.SplitWorkers(consensus.Outcome{}, nil, -1)
	wantCode(t, err, "INVALID_BUDGET")
}

func TestSplitVerifiers_StakeDampedByDeviation(t *testing.T) {
	e := testEngine(t)
	outcome := consensus.Outcome{
		Inliers:    []string{"v1", "v2"},
		Outliers:   []string{"v3"},
		Deviations: map[string]float64{"v1": 0, "v2": 2, "v3": 50},
		Stakes:     map[string]float64{"v1": 100, "v2": 100, "v3": 100},
	}

	split, err := e.SplitVerifiers(outcome, 300)
	if err != nil {
		t.Fatalf("SplitVerifiers: %v", err)
	}
	if len(split.Payouts) != 3 {
		t.Fatalf("expected 3 payout rows, got %d", len(split.Payouts))
	}

	byName := map[string]VerifierPayout{}
	var sum float64
	for _, p := range split.Payouts {
		byName[p.Verifier] = p
		sum += p.Amount
	}
	// Weights are 100/(1+0) and 100/(1+2), so v1 takes three quarters.
	if !approx(byName["v1"].Amount, 225) {
		t.Errorf("v1 amount: got %v, want 225", byName["v1"].Amount)
	}
	if !approx(byName["v2"].Amount, 75) {
		t.Errorf("v2 amount: got %v, want 75", byName["v2"].Amount)
	}
	if !approx(sum, 300) {
		t.Errorf("verifier payouts must conserve the budget: got %v", sum)
	}

	v3 := byName["v3"]
	if !v3.Slashed || v3.Amount != 0 || !approx(v3.SlashMagnitude, 50) {
		t.Errorf("outlier must be slashed with its deviation as magnitude, got %+v", v3)
	}
	if byName["v1"].Slashed || byName["v2"].Slashed {
		t.Error("inliers must not carry the slashing flag")
	}
}

func TestSplitVerifiers_NoInliersLeavesBudgetUnspent(t *testing.T) {
	e := testEngine(t)
	outcome := consensus.Outcome{
		Outliers:   []string{"v1"},
		Deviations: map[string]float64{"v1": 10},
		Stakes:     map[string]float64{"v1": 100},
	}

	split, err := e.SplitVerifiers(outcome, 400)
	if err != nil {
		t.Fatalf("SplitVerifiers: %v", err)
	}
	if !approx(split.Unspent, 400) || split.Allocated != 0 {
		t.Errorf("no inliers must leave the budget unspent, got %+v", split)
	}
	if len(split.Payouts) != 1 || !split.Payouts[0].Slashed {
		t.Errorf("the outlier row must survive, got %+v", split.Payouts)
	}
}

func TestSplitVerifiers_RejectsUnscoredOutcome(t *testing.T) {
	e := testEngine(t)
	_, err := e.SplitVerifiers(consensus.Outcome{Unscored: true}, 100)
	wantCode(t, err, "NO_CONSENSUS")
}
