package api

import (
	"context"
	"net/http"

	"github.com/okian/scoreboard/internal/domain/model"
)

// EventDependencies defines the interface for reading a player's score events.
type EventDependencies interface {
	PlayerEvents(ctx context.Context, id int64, limit int) ([]model.ScoreEvent, error)
}

// EventsHandler handles event history requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandleList handles GET /api/players/{id}/events?limit=N, newest first.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.player_events"
	id, err := pathID(r, op, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, op, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := h.deps.PlayerEvents(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []model.ScoreEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
