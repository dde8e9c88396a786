package api

import (
	"context"
	"net/http"

	"github.com/okian/scoreboard/internal/domain/model"
)

// PlayersDependencies defines the interface for player operations.
type PlayersDependencies interface {
	RegisterPlayer(ctx context.Context, name string) (model.Player, error)
	GetPlayer(ctx context.Context, id int64) (model.Player, error)
	Recompute(ctx context.Context, id int64) (model.Aggregate, error)
}

// PlayersHandler handles player registration, lookup and recompute.
type PlayersHandler struct {
	deps PlayersDependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayersDependencies) *PlayersHandler {
	return &PlayersHandler{deps: deps}
}

type registerRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

// HandleRegister handles POST /api/players.
func (h *PlayersHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_player"
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, badRequest(op, err))
		return
	}
	p, err := h.deps.RegisterPlayer(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleGet handles GET /api/players/{id}.
func (h *PlayersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.get_player", "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.deps.GetPlayer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleRecompute handles POST /api/players/{id}/recompute.
func (h *PlayersHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.recompute", "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	agg, err := h.deps.Recompute(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}
