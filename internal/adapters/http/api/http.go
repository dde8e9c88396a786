// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmitScore(ctx context.Context, req service.SubmitRequest) (service.SubmitResult, error)
	GetTopN(ctx context.Context, n int) ([]model.Entry, error)
	GetRank(ctx context.Context, playerID int64) (model.Standing, error)

	RegisterPlayer(ctx context.Context, name string) (model.Player, error)
	GetPlayer(ctx context.Context, id int64) (model.Player, error)
	PlayerEvents(ctx context.Context, id int64, limit int) ([]model.ScoreEvent, error)
	Recompute(ctx context.Context, id int64) (model.Aggregate, error)

	Ready(ctx context.Context) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	playersHandler     *PlayersHandler
	eventsHandler      *EventsHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps top-N reads.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(deps),
		statsHandler:       NewStatsHandler(statsProvider),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
		playersHandler:     NewPlayersHandler(deps),
		eventsHandler:      NewEventsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, RequestID(MetricsMiddleware(h, endpoint)))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /readyz", "readyz", s.healthHandler.HandleReady)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("POST /api/leaderboard/submit", "submit", s.leaderboardHandler.HandleSubmit)
	route("GET /api/leaderboard/top", "top", s.leaderboardHandler.HandleTop)
	route("GET /api/leaderboard/rank/{playerID}", "rank", s.rankHandler.HandleGetRank)

	route("POST /api/players", "register_player", s.playersHandler.HandleRegister)
	route("GET /api/players/{id}", "get_player", s.playersHandler.HandleGet)
	route("GET /api/players/{id}/events", "player_events", s.eventsHandler.HandleList)
	route("POST /api/players/{id}/recompute", "recompute", s.playersHandler.HandleRecompute)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err through the error taxonomy. Internal causes are logged,
// not echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := types.HTTPStatus(err)
	code := types.CodeOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Get().Error(r.Context(), "request failed",
			logger.String("request_id", RequestIDFrom(r.Context())),
			logger.String("path", r.URL.Path),
			logger.String("code", code),
			logger.Error(err),
		)
		if types.KindOf(err) == types.KindInternal {
			msg = http.StatusText(status)
		}
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func badRequest(op string, err error) error {
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	return types.E(op, types.KindInvalidArgument, err)
}

// pathID parses a positive int64 path value.
func pathID(r *http.Request, op, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, types.Errorf(op, types.KindInvalidArgument, "%w: %q", ErrInvalidID, r.PathValue(name))
	}
	return id, nil
}

// queryInt parses an optional non-negative integer query parameter; absent is 0.
func queryInt(r *http.Request, op, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, types.Errorf(op, types.KindInvalidArgument, "%w: %s=%q", ErrInvalidLimit, name, raw)
	}
	return n, nil
}
