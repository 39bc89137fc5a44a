package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"arbiter-backend/internal/application/services"
	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/consensus"
	"arbiter-backend/pkg/api"
)

// RoundHandler serves the consensus round endpoints.
type RoundHandler struct {
	service *services.SettlementService
	logger  *zap.Logger

	// now supplies the clock used to label a round's current phase in
	// responses. Tests align it with the service clock.
	now func() time.Time
}

// NewRoundHandler creates a round handler.
func NewRoundHandler(service *services.SettlementService, logger *zap.Logger) *RoundHandler {
	return &RoundHandler{service: service, logger: logger, now: time.Now}
}

// WithClock replaces the handler clock and returns the handler.
func (h *RoundHandler) WithClock(now func() time.Time) *RoundHandler {
	h.now = now
	return h
}

// roundResponse is the round view plus its settlement once one exists.
type roundResponse struct {
	api.Round
	Settlement *consensus.Settlement `json:"settlement,omitempty"`
}

// OpenRound handles POST /api/v1/rounds.
func (h *RoundHandler) OpenRound(w http.ResponseWriter, r *http.Request) {
	var req api.OpenRoundRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	round, err := h.service.OpenRound(r.Context(), services.OpenRoundCommand{
		AuditID:  req.AuditID,
		StudioID: req.StudioID,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusCreated, h.view(round))
}

// GetRound handles GET /api/v1/rounds/{roundID}.
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.service.GetRound(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, h.view(round))
}

// Commit handles POST /api/v1/rounds/{roundID}/commitments.
func (h *RoundHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req api.CommitRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	err := h.service.Commit(r.Context(), services.CommitCommand{
		RoundID:    chi.URLParam(r, "roundID"),
		VerifierID: req.VerifierID,
		Digest:     req.Digest,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusNoContent, nil)
}

// Reveal handles POST /api/v1/rounds/{roundID}/reveals.
func (h *RoundHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	var req api.RevealRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	err := h.service.Reveal(r.Context(), services.RevealCommand{
		RoundID:    chi.URLParam(r, "roundID"),
		VerifierID: req.VerifierID,
		Scores:     toScoreSet(req.Scores),
		Salt:       req.Salt,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusNoContent, nil)
}

// Settle handles POST /api/v1/rounds/{roundID}/settlement. A round
// that settles without consensus still settles; the caller gets the
// consensus gap error and can read the settlement from the round.
func (h *RoundHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req api.SettleRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	result, err := h.service.Settle(r.Context(), services.SettleCommand{
		RoundID: chi.URLParam(r, "roundID"),
		Budget:  req.Budget,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, result)
}

func (h *RoundHandler) view(round *consensus.Round) roundResponse {
	commitments := round.Commitments()
	cviews := make([]api.Commitment, 0, len(commitments))
	for _, c := range commitments {
		cviews = append(cviews, api.Commitment{
			Verifier:    c.Verifier,
			Digest:      c.Digest.String(),
			Stake:       c.Stake,
			CommittedAt: c.CommittedAt,
		})
	}

	reveals := round.Reveals()
	rviews := make([]api.Reveal, 0, len(reveals))
	for _, s := range reveals {
		rviews = append(rviews, api.Reveal{
			Verifier:   s.Verifier,
			Stake:      s.Stake,
			Scores:     fromScoreSet(s.Scores),
			RevealedAt: s.RevealedAt,
		})
	}

	return roundResponse{
		Round: api.Round{
			RoundID:        round.ID(),
			StudioID:       round.StudioID(),
			AuditID:        round.AuditID(),
			DataHash:       round.DataHash().String(),
			Phase:          string(round.Phase(h.now().UTC())),
			Dimensions:     round.Dimensions(),
			Participants:   round.Participants(),
			OpenedAt:       round.OpenedAt(),
			CommitDeadline: round.CommitDeadline(),
			RevealDeadline: round.RevealDeadline(),
			Commitments:    cviews,
			Reveals:        rviews,
			Settled:        round.Settled(),
		},
		Settlement: round.Settlement(),
	}
}

func toScoreSet(scores map[string]map[string]float64) analytics.ScoreSet {
	out := make(analytics.ScoreSet, len(scores))
	for participant, row := range scores {
		vector := make(analytics.Vector, len(row))
		for dim, v := range row {
			vector[dim] = v
		}
		out[participant] = vector
	}
	return out
}

func fromScoreSet(scores analytics.ScoreSet) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(scores))
	for participant, vector := range scores {
		row := make(map[string]float64, len(vector))
		for dim, v := range vector {
			row[dim] = v
		}
		out[participant] = row
	}
	return out
}
