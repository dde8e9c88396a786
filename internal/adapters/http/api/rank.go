package api

import (
	"context"
	"net/http"

	"github.com/okian/scoreboard/internal/domain/model"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	GetRank(ctx context.Context, playerID int64) (model.Standing, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /api/leaderboard/rank/{playerID}.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.rank", "playerID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := h.deps.GetRank(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
