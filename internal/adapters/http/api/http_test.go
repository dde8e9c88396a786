package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/scoreboard/internal/adapters/http/api"
	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newMux(maxLimit int) (*http.ServeMux, *service.Service) {
	svc := service.New(service.WithMaxLeaderboardLimit(maxLimit))
	So(svc.Start(context.Background()), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc, svc, maxLimit).Register(context.Background(), mux)
	return mux, svc
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func register(mux http.Handler, name string) model.Player {
	w := do(mux, http.MethodPost, "/api/players", fmt.Sprintf(`{"name":%q}`, name))
	So(w.Code, ShouldEqual, http.StatusCreated)
	return decodeBody[model.Player](w)
}

func TestLeaderboardRoutes(t *testing.T) {
	Convey("Given the API over a running service", t, func() {
		mux, svc := newMux(3)
		defer svc.Stop()
		alice := register(mux, "alice")

		Convey("When scores are submitted", func() {
			w1 := do(mux, http.MethodPost, "/api/leaderboard/submit", fmt.Sprintf(`{"player_id":%d,"score":100}`, alice.ID))
			w2 := do(mux, http.MethodPost, "/api/leaderboard/submit", fmt.Sprintf(`{"userId":%d,"score":50,"mode":"ranked"}`, alice.ID))

			Convey("Then the new total is returned", func() {
				So(w1.Code, ShouldEqual, http.StatusOK)
				So(w2.Code, ShouldEqual, http.StatusOK)
				res := decodeBody[service.SubmitResult](w2)
				So(res.NewTotal, ShouldEqual, 150)
				So(res.PlayerID, ShouldEqual, alice.ID)
				So(w2.Header().Get(api.HeaderRequestID), ShouldNotBeEmpty)
			})

			Convey("Then rank and top reflect it", func() {
				w := do(mux, http.MethodGet, fmt.Sprintf("/api/leaderboard/rank/%d", alice.ID), "")
				So(w.Code, ShouldEqual, http.StatusOK)
				st := decodeBody[model.Standing](w)
				So(st.Rank, ShouldEqual, 1)
				So(st.Total, ShouldEqual, 150)
				So(w.Body.String(), ShouldContainSubstring, `"total_score":150`)

				w = do(mux, http.MethodGet, "/api/leaderboard/top", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				top := decodeBody[[]model.Entry](w)
				So(len(top), ShouldEqual, 1)
				So(top[0].Name, ShouldEqual, "alice")
			})

			Convey("Then the event history lists both, newest first", func() {
				w := do(mux, http.MethodGet, fmt.Sprintf("/api/players/%d/events?limit=5", alice.ID), "")
				So(w.Code, ShouldEqual, http.StatusOK)
				events := decodeBody[[]model.ScoreEvent](w)
				So(len(events), ShouldEqual, 2)
				So(events[0].Delta, ShouldEqual, 50)
				So(events[0].Mode, ShouldEqual, "ranked")
				So(events[1].Mode, ShouldEqual, model.DefaultMode)
			})

			Convey("Then recompute agrees with the running total", func() {
				w := do(mux, http.MethodPost, fmt.Sprintf("/api/players/%d/recompute", alice.ID), "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[model.Aggregate](w).Total, ShouldEqual, 150)
			})
		})

		Convey("When a request id is repeated", func() {
			body := fmt.Sprintf(`{"player_id":%d,"score":5,"request_id":"abc"}`, alice.ID)
			do(mux, http.MethodPost, "/api/leaderboard/submit", body)
			w := do(mux, http.MethodPost, "/api/leaderboard/submit", body)

			Convey("Then the second is reported as a duplicate", func() {
				res := decodeBody[service.SubmitResult](w)
				So(res.Duplicate, ShouldBeTrue)
				So(res.NewTotal, ShouldEqual, 5)
			})
		})

		Convey("When more players exist than the limit", func() {
			for i := range 5 {
				p := register(mux, fmt.Sprintf("p%d", i))
				do(mux, http.MethodPost, "/api/leaderboard/submit", fmt.Sprintf(`{"player_id":%d,"score":%d}`, p.ID, i+1))
			}
			w := do(mux, http.MethodGet, "/api/leaderboard/top?limit=50", "")

			Convey("Then the list is capped", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(decodeBody[[]model.Entry](w)), ShouldEqual, 3)
			})
		})
	})
}

func TestErrorMapping(t *testing.T) {
	Convey("Given the API over a running service", t, func() {
		mux, svc := newMux(100)
		defer svc.Stop()
		register(mux, "taken")

		cases := []struct {
			name   string
			method string
			path   string
			body   string
			status int
			code   string
		}{
			{"unknown player submit", http.MethodPost, "/api/leaderboard/submit", `{"player_id":999,"score":1}`, http.StatusNotFound, "not_found"},
			{"missing score", http.MethodPost, "/api/leaderboard/submit", `{"player_id":1}`, http.StatusBadRequest, "invalid_argument"},
			{"missing player", http.MethodPost, "/api/leaderboard/submit", `{"score":1}`, http.StatusBadRequest, "invalid_argument"},
			{"malformed json", http.MethodPost, "/api/leaderboard/submit", `{"player_id":`, http.StatusBadRequest, "invalid_argument"},
			{"unscored rank", http.MethodGet, "/api/leaderboard/rank/1", "", http.StatusNotFound, "not_found"},
			{"non-numeric rank", http.MethodGet, "/api/leaderboard/rank/bob", "", http.StatusBadRequest, "invalid_argument"},
			{"bad limit", http.MethodGet, "/api/leaderboard/top?limit=-1", "", http.StatusBadRequest, "invalid_argument"},
			{"duplicate name", http.MethodPost, "/api/players", `{"name":"taken"}`, http.StatusConflict, "already_exists"},
			{"blank name", http.MethodPost, "/api/players", `{"name":"   "}`, http.StatusBadRequest, "invalid_argument"},
			{"unknown player", http.MethodGet, "/api/players/77", "", http.StatusNotFound, "not_found"},
			{"unknown player events", http.MethodGet, "/api/players/77/events", "", http.StatusNotFound, "not_found"},
			{"recompute without events", http.MethodPost, "/api/players/1/recompute", "", http.StatusNotFound, "not_found"},
		}
		for _, tc := range cases {
			Convey("When "+tc.name, func() {
				w := do(mux, tc.method, tc.path, tc.body)

				Convey("Then the status and code follow the taxonomy", func() {
					So(w.Code, ShouldEqual, tc.status)
					e := decodeBody[apiError](w)
					So(e.Code, ShouldEqual, tc.code)
					So(e.Message, ShouldNotBeEmpty)
				})
			})
		}
	})
}

type stubDeps struct {
	api.Dependencies
	readyErr error
	topErr   error
}

func (s stubDeps) Ready(context.Context) error { return s.readyErr }
func (s stubDeps) GetTopN(context.Context, int) ([]model.Entry, error) {
	return nil, s.topErr
}

type stubStats map[string]interface{}

func (s stubStats) GetStats() map[string]interface{} { return s }

func TestOperationalRoutes(t *testing.T) {
	Convey("Given a server over stub dependencies", t, func() {
		deps := stubDeps{}
		build := func(d stubDeps) *http.ServeMux {
			mux := http.NewServeMux()
			api.NewServer(d, stubStats{"started": true}, 10).Register(context.Background(), mux)
			return mux
		}

		Convey("When the store answers", func() {
			w := do(build(deps), http.MethodGet, "/readyz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When the store is down", func() {
			deps.readyErr = types.E("postgres.Ping", types.KindStoreUnavailable, errors.New("dial tcp: refused"))
			w := do(build(deps), http.MethodGet, "/readyz", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decodeBody[apiError](w).Code, ShouldEqual, "store_unavailable")
		})

		Convey("When an unclassified error escapes", func() {
			deps.topErr = errors.New("secret driver detail")
			w := do(build(deps), http.MethodGet, "/api/leaderboard/top", "")

			Convey("Then it is reported as internal without the cause", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				e := decodeBody[apiError](w)
				So(e.Code, ShouldEqual, "internal")
				So(e.Message, ShouldNotContainSubstring, "secret")
			})
		})

		Convey("When the top list is empty", func() {
			w := do(build(deps), http.MethodGet, "/api/leaderboard/top", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})

		Convey("When stats and metrics are requested", func() {
			mux := build(deps)
			stats := do(mux, http.MethodGet, "/stats", "")
			metrics := do(mux, http.MethodGet, "/healthz", "")

			Convey("Then both are served", func() {
				So(stats.Code, ShouldEqual, http.StatusOK)
				So(stats.Body.String(), ShouldContainSubstring, `"started":true`)
				So(metrics.Code, ShouldEqual, http.StatusOK)
				So(metrics.Body.String(), ShouldContainSubstring, "scoreboard_")
			})
		})

		Convey("When the caller sends a request id", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", http.NoBody)
			req.Header.Set(api.HeaderRequestID, "trace-123")
			w := httptest.NewRecorder()
			build(deps).ServeHTTP(w, req)

			Convey("Then it is echoed back", func() {
				So(w.Header().Get(api.HeaderRequestID), ShouldEqual, "trace-123")
			})
		})

		Convey("When a route is called with the wrong method", func() {
			w := do(build(deps), http.MethodDelete, "/api/leaderboard/top", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}
