package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appports "arbiter-backend/internal/application/ports"
	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/consensus"
	"arbiter-backend/internal/domain/dkg"
	"arbiter-backend/internal/domain/rewards"
	"arbiter-backend/internal/domain/studio"
	"arbiter-backend/internal/errors"
	"arbiter-backend/internal/infrastructure/observability"
	"arbiter-backend/internal/ports"
)

// OpenRoundCommand opens a consensus round over a finished audit.
type OpenRoundCommand struct {
	AuditID string

	// StudioID, when set, must match the studio the audit ran for.
	StudioID string
}

// CommitCommand submits a verifier's score commitment.
type CommitCommand struct {
	RoundID    string
	VerifierID string

	// Digest is the hex commitment digest over the verifier's scores,
	// salt, and the round's data hash.
	Digest string
}

// RevealCommand discloses the scores behind a commitment.
type RevealCommand struct {
	RoundID    string
	VerifierID string
	Scores     analytics.ScoreSet
	Salt       []byte
}

// SettleCommand closes a round and distributes the escrowed budget.
type SettleCommand struct {
	RoundID string
	Budget  float64
}

// SettlementResult is everything a settlement produced: the consensus
// outcome and both reward splits.
type SettlementResult struct {
	Settlement *consensus.Settlement `json:"settlement"`
	Workers    rewards.WorkerSplit   `json:"workers"`
	Verifiers  rewards.VerifierSplit `json:"verifiers"`
}

// SettlementService drives consensus rounds through their lifecycle.
// Round state transitions are delegated to the round aggregate inside
// store updates; this service sequences I/O around them.
type SettlementService struct {
	catalog *studio.Catalog
	stakes  ports.StakeRegistry
	reports appports.ReportStore
	rounds  appports.RoundStore
	events  ports.EventPublisher
	metrics *observability.Collector
	logger  *zap.Logger

	// now supplies the service clock. Tests replace it to step rounds
	// through their phases.
	now func() time.Time
}

// NewSettlementService creates a settlement service.
func NewSettlementService(
	catalog *studio.Catalog,
	stakes ports.StakeRegistry,
	reports appports.ReportStore,
	rounds appports.RoundStore,
	events ports.EventPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *SettlementService {
	return &SettlementService{
		catalog: catalog,
		stakes:  stakes,
		reports: reports,
		rounds:  rounds,
		events:  events,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the service clock and returns the service. Round
// deadlines are enforced against the injected time source, which tests
// and replay tooling control.
func (s *SettlementService) WithClock(now func() time.Time) *SettlementService {
	s.now = now
	return s
}

// OpenRound creates a commit-reveal round for an audit's score matrix.
// The round inherits dimensions and participants from the report and
// its timing and strictness from the studio.
func (s *SettlementService) OpenRound(ctx context.Context, cmd OpenRoundCommand) (*consensus.Round, error) {
	report, err := s.reports.GetReport(ctx, cmd.AuditID)
	if err != nil {
		return nil, err
	}
	if cmd.StudioID != "" && cmd.StudioID != report.StudioID {
		return nil, errors.Input("STUDIO_MISMATCH", "audit was run for a different studio").
			WithOperation("OpenRound").WithResource(cmd.StudioID).
			WithDetails(map[string]interface{}{"audit_studio": report.StudioID}).Build()
	}
	st, err := s.catalog.Get(report.StudioID)
	if err != nil {
		return nil, err
	}

	participants := make([]string, 0, len(report.Scores))
	for participant := range report.Scores {
		participants = append(participants, participant)
	}
	sort.Strings(participants)

	round, err := consensus.NewRound(consensus.RoundParams{
		ID:           uuid.New().String(),
		StudioID:     st.ID,
		AuditID:      report.AuditID,
		DataHash:     report.DataHash,
		Dimensions:   report.Dimensions,
		Participants: participants,
		MADMultiple:  st.MADMultiple,
		CommitWindow: st.CommitWindow,
		RevealWindow: st.RevealWindow,
		OpenedAt:     s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.rounds.CreateRound(ctx, round); err != nil {
		return nil, fmt.Errorf("failed to save round: %w", err)
	}
	s.metrics.RoundsOpened.Inc()

	s.logger.Info("consensus round opened",
		zap.String("roundID", round.ID()),
		zap.String("auditID", round.AuditID()),
		zap.String("studioID", round.StudioID()),
		zap.Int("participants", len(participants)),
		zap.Time("commitDeadline", round.CommitDeadline()),
		zap.Time("revealDeadline", round.RevealDeadline()),
	)
	return round, nil
}

// Commit records a verifier's commitment, staking whatever the registry
// reports for them at commit time.
func (s *SettlementService) Commit(ctx context.Context, cmd CommitCommand) error {
	digest, err := dkg.ParseHash(cmd.Digest)
	if err != nil {
		return err
	}
	stake, err := s.stakes.Stake(ctx, cmd.VerifierID)
	if err != nil {
		return errors.External("STAKE_LOOKUP_FAILED", "verifier stake could not be resolved").
			WithOperation("Commit").WithResource(cmd.VerifierID).WithCause(err).Build()
	}

	now := s.now().UTC()
	err = s.rounds.UpdateRound(ctx, cmd.RoundID, func(r *consensus.Round) error {
		st, err := s.catalog.Get(r.StudioID())
		if err != nil {
			return err
		}
		if stake < st.MinVerifierStake {
			return errors.Input("INSUFFICIENT_STAKE", "stake is below the studio minimum").
				WithOperation("Commit").WithResource(cmd.VerifierID).
				WithDetails(map[string]interface{}{"stake": stake, "minimum": st.MinVerifierStake}).Build()
		}
		return r.Commit(cmd.VerifierID, stake, digest, now)
	})
	if err != nil {
		return err
	}
	s.metrics.CommitsTotal.Inc()

	s.logger.Info("commitment recorded",
		zap.String("roundID", cmd.RoundID),
		zap.String("verifierID", cmd.VerifierID),
		zap.Float64("stake", stake),
	)
	return nil
}

// Reveal discloses a verifier's scores. The round aggregate checks the
// reveal against the stored commitment digest.
func (s *SettlementService) Reveal(ctx context.Context, cmd RevealCommand) error {
	now := s.now().UTC()
	err := s.rounds.UpdateRound(ctx, cmd.RoundID, func(r *consensus.Round) error {
		return r.Reveal(cmd.VerifierID, cmd.Scores, cmd.Salt, now)
	})
	if err != nil {
		return err
	}
	s.metrics.RevealsTotal.Inc()

	s.logger.Info("reveal recorded",
		zap.String("roundID", cmd.RoundID),
		zap.String("verifierID", cmd.VerifierID),
	)
	return nil
}

// Settle closes the round, aggregates revealed scores, and splits the
// budget between workers and verifiers. When consensus could not form,
// the round still settles and non-revealers are still flagged, but no
// rewards are computed and the caller receives a consensus gap error.
func (s *SettlementService) Settle(ctx context.Context, cmd SettleCommand) (*SettlementResult, error) {
	if cmd.Budget < 0 {
		return nil, errors.Input("INVALID_BUDGET", "settlement budget must not be negative").
			WithOperation("Settle").WithResource(cmd.RoundID).Build()
	}

	now := s.now().UTC()
	var settlement *consensus.Settlement
	var studioID, auditID string
	err := s.rounds.UpdateRound(ctx, cmd.RoundID, func(r *consensus.Round) error {
		st, err := r.Settle(now)
		if err != nil {
			return err
		}
		settlement = st
		studioID = r.StudioID()
		auditID = r.AuditID()
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The round is durably settled from here on. Announce it before
	// reward math, which can still refuse an unscored outcome.
	s.metrics.ObserveSettlement(settlement.Outcome.Unscored, len(settlement.Outcome.Outliers), len(settlement.NonRevealers))
	s.publishSettled(ctx, studioID, auditID, settlement)

	st, err := s.catalog.Get(studioID)
	if err != nil {
		return nil, err
	}
	report, err := s.reports.GetReport(ctx, auditID)
	if err != nil {
		return nil, err
	}
	engine, err := rewards.NewEngine(st.DimensionWeights)
	if err != nil {
		return nil, err
	}

	workers, err := engine.SplitWorkers(settlement.Outcome, report.Contribution, st.WorkerBudget(cmd.Budget))
	if err != nil {
		return nil, err
	}
	verifiers, err := engine.SplitVerifiers(settlement.Outcome, st.VerifierBudget(cmd.Budget))
	if err != nil {
		return nil, err
	}

	s.logger.Info("round settled",
		zap.String("roundID", cmd.RoundID),
		zap.String("auditID", auditID),
		zap.String("studioID", studioID),
		zap.Int("inliers", len(settlement.Outcome.Inliers)),
		zap.Int("outliers", len(settlement.Outcome.Outliers)),
		zap.Int("nonRevealers", len(settlement.NonRevealers)),
		zap.Float64("workerPaid", workers.Allocated),
		zap.Float64("verifierPaid", verifiers.Allocated),
	)
	return &SettlementResult{Settlement: settlement, Workers: workers, Verifiers: verifiers}, nil
}

// GetRound returns the current state of a round.
func (s *SettlementService) GetRound(ctx context.Context, roundID string) (*consensus.Round, error) {
	return s.rounds.GetRound(ctx, roundID)
}

// publishSettled emits the settled event plus one flag event per
// excluded verifier. Best effort, logged on failure.
func (s *SettlementService) publishSettled(ctx context.Context, studioID, auditID string, settlement *consensus.Settlement) {
	now := s.now().UTC()
	events := []ports.Event{{
		Type:       ports.EventRoundSettled,
		Source:     eventSource,
		OccurredAt: now,
		Detail: map[string]interface{}{
			"round_id":      settlement.RoundID,
			"audit_id":      auditID,
			"studio_id":     studioID,
			"unscored":      settlement.Outcome.Unscored,
			"inliers":       settlement.Outcome.Inliers,
			"outliers":      settlement.Outcome.Outliers,
			"non_revealers": settlement.NonRevealers,
		},
	}}
	for _, verifier := range settlement.Outcome.Outliers {
		events = append(events, flagEvent(now, settlement.RoundID, verifier, "outlier", map[string]interface{}{
			"deviation": settlement.Outcome.Deviations[verifier],
		}))
	}
	for _, verifier := range settlement.NonRevealers {
		events = append(events, flagEvent(now, settlement.RoundID, verifier, "no_reveal", nil))
	}

	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish settlement events",
			zap.String("roundID", settlement.RoundID),
			zap.Error(err),
		)
	}
}

func flagEvent(at time.Time, roundID, verifier, reason string, extra map[string]interface{}) ports.Event {
	detail := map[string]interface{}{
		"round_id": roundID,
		"verifier": verifier,
		"reason":   reason,
	}
	for k, v := range extra {
		detail[k] = v
	}
	return ports.Event{
		Type:       ports.EventVerifierFlagged,
		Source:     eventSource,
		OccurredAt: at,
		Detail:     detail,
	}
}
