package api

import (
	"context"
	"net/http"

	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/domain/model"
)

const defaultTopLimit = 10

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	SubmitScore(ctx context.Context, req service.SubmitRequest) (service.SubmitResult, error)
	GetTopN(ctx context.Context, n int) ([]model.Entry, error)
}

// LeaderboardHandler handles submissions and top-N reads.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	if maxLimit < 1 {
		maxLimit = 100
	}
	return &LeaderboardHandler{deps: deps, maxLimit: maxLimit}
}

// submitRequest accepts player_id, or userId as older clients send it.
type submitRequest struct {
	PlayerID  *int64 `json:"player_id" validate:"required_without=UserID,omitempty,gt=0"`
	UserID    *int64 `json:"userId" validate:"required_without=PlayerID,omitempty,gt=0"`
	Score     *int64 `json:"score" validate:"required"`
	Mode      string `json:"mode" validate:"omitempty,max=32,printascii"`
	RequestID string `json:"request_id" validate:"omitempty,max=128"`
}

func (s submitRequest) playerID() int64 {
	if s.PlayerID != nil {
		return *s.PlayerID
	}
	if s.UserID != nil {
		return *s.UserID
	}
	return 0
}

// HandleSubmit handles POST /api/leaderboard/submit.
func (h *LeaderboardHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	var req submitRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, badRequest(op, err))
		return
	}
	res, err := h.deps.SubmitScore(r.Context(), service.SubmitRequest{
		PlayerID:  req.playerID(),
		Delta:     *req.Score,
		Mode:      req.Mode,
		RequestID: req.RequestID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleTop handles GET /api/leaderboard/top?limit=N. The limit defaults to
// 10 and is capped at the configured maximum.
func (h *LeaderboardHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	const op = "api.top"
	n, err := queryInt(r, op, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if n == 0 {
		n = defaultTopLimit
	}
	n = min(n, h.maxLimit)

	entries, err := h.deps.GetTopN(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
