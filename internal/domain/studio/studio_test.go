package studio

import (
	"math"
	"testing"
	"time"

	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/attribution"
	"arbiter-backend/internal/errors"
)

func validParams() Params {
	return Params{
		ID:   "studio-research",
		Name: "DeSci Research",
		DimensionWeights: map[string]float64{
			analytics.DimensionInitiative:     0.25,
			analytics.DimensionCollaboration:  0.20,
			analytics.DimensionReasoningDepth: 0.30,
			analytics.DimensionCompliance:     0.15,
			analytics.DimensionEfficiency:     0.10,
		},
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	s, err := New(validParams())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.MADMultiple != DefaultMADMultiple {
		t.Errorf("MAD multiple = %v, want default %v", s.MADMultiple, DefaultMADMultiple)
	}
	if s.CommitWindow != DefaultCommitWindow || s.RevealWindow != DefaultRevealWindow {
		t.Error("windows must default when unset")
	}
	if s.WorkerSplit != DefaultWorkerSplit {
		t.Errorf("worker split = %v, want default %v", s.WorkerSplit, DefaultWorkerSplit)
	}
	if s.AttributionMode != attribution.MethodBetweenness {
		t.Errorf("attribution mode = %v, want betweenness default", s.AttributionMode)
	}
}

func TestNew_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Params)
		wantCode string
	}{
		{
			name:     "empty id",
			mutate:   func(p *Params) { p.ID = "" },
			wantCode: "STUDIO_ID",
		},
		{
			name: "weights sum above one",
			mutate: func(p *Params) {
				p.DimensionWeights[analytics.DimensionInitiative] = 0.5
			},
			wantCode: "WEIGHTS_SUM",
		},
		{
			name: "weights sum below one",
			mutate: func(p *Params) {
				delete(p.DimensionWeights, analytics.DimensionEfficiency)
			},
			wantCode: "WEIGHTS_SUM",
		},
		{
			name: "weight on unknown dimension",
			mutate: func(p *Params) {
				p.DimensionWeights["originality"] = 0.0
			},
			wantCode: "UNKNOWN_DIMENSION",
		},
		{
			name: "negative weight",
			mutate: func(p *Params) {
				p.DimensionWeights[analytics.DimensionInitiative] = -0.25
				p.DimensionWeights[analytics.DimensionCollaboration] = 0.70
			},
			wantCode: "NEGATIVE_WEIGHT",
		},
		{
			name:     "no weights at all",
			mutate:   func(p *Params) { p.DimensionWeights = nil },
			wantCode: "WEIGHTS_MISSING",
		},
		{
			name:     "negative MAD multiple",
			mutate:   func(p *Params) { p.MADMultiple = -1 },
			wantCode: "BAD_MAD_MULTIPLE",
		},
		{
			name:     "negative window",
			mutate:   func(p *Params) { p.CommitWindow = -time.Minute },
			wantCode: "BAD_WINDOW",
		},
		{
			name:     "split above one",
			mutate:   func(p *Params) { p.WorkerSplit = 1.2 },
			wantCode: "BAD_SPLIT",
		},
		{
			name:     "negative minimum stake",
			mutate:   func(p *Params) { p.MinVerifierStake = -5 },
			wantCode: "BAD_MIN_STAKE",
		},
		{
			name:     "unknown attribution method",
			mutate:   func(p *Params) { p.AttributionMode = "pagerank" },
			wantCode: "UNKNOWN_ATTRIBUTION_METHOD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams()
			tt.mutate(&params)

			_, err := New(params)
			if err == nil {
				t.Fatal("expected config error, got nil")
			}
			if !errors.IsConfig(err) {
				t.Errorf("expected config classification, got %v", err)
			}
			if got := errors.CodeOf(err); got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}
}

func TestNew_CustomDimensionCanCarryWeight(t *testing.T) {
	p := validParams()
	p.CustomDimensions = []string{"originality"}
	p.DimensionWeights = map[string]float64{
		analytics.DimensionReasoningDepth: 0.5,
		"originality":                     0.5,
	}

	s, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dims := s.Dimensions()
	if dims[len(dims)-1] != "originality" {
		t.Errorf("custom dimension must append to the list, got %v", dims)
	}
}

func TestBudgetSplit(t *testing.T) {
	s, err := New(validParams())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := s.WorkerBudget(1000); math.Abs(got-800) > 1e-9 {
		t.Errorf("worker budget = %v, want 800", got)
	}
	if got := s.VerifierBudget(1000); math.Abs(got-200) > 1e-9 {
		t.Errorf("verifier budget = %v, want 200", got)
	}
	if total := s.WorkerBudget(1000) + s.VerifierBudget(1000); math.Abs(total-1000) > 1e-9 {
		t.Errorf("split must conserve the escrow, got %v", total)
	}
}
