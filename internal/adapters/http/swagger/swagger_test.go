package swagger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/smartystreets/goconvey/convey"
)

func TestSwaggerHandler(t *testing.T) {
	convey.Convey("Given the docs routes", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		convey.Convey("Then /openapi.yaml serves the embedded document", func() {
			req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
			convey.So(w.Body.Len(), convey.ShouldEqual, len(OpenAPI))
		})

		convey.Convey("Then /api-docs serves the ReDoc page", func() {
			req := httptest.NewRequest(http.MethodGet, "/api-docs", http.NoBody)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
			convey.So(w.Body.String(), convey.ShouldContainSubstring, "redoc-container")
			convey.So(w.Body.String(), convey.ShouldContainSubstring, redocURL)
		})
	})
}

func TestOpenAPIDocument(t *testing.T) {
	convey.Convey("Given the embedded OpenAPI document", t, func() {
		doc, err := yaml.Parser().Unmarshal(OpenAPI)
		convey.So(err, convey.ShouldBeNil)
		paths, ok := doc["paths"].(map[string]interface{})
		convey.So(ok, convey.ShouldBeTrue)

		convey.Convey("Then every served route is documented", func() {
			for _, p := range []string{
				"/api/leaderboard/submit",
				"/api/leaderboard/top",
				"/api/leaderboard/rank/{playerID}",
				"/api/players",
				"/api/players/{id}",
				"/api/players/{id}/events",
				"/api/players/{id}/recompute",
				"/healthz",
				"/readyz",
				"/stats",
			} {
				convey.So(paths, convey.ShouldContainKey, p)
			}
		})
	})
}

func TestSwaggerHandlerWithNilMux(t *testing.T) {
	convey.Convey("Given a nil mux", t, func() {
		convey.So(func() { Register(context.Background(), nil) }, convey.ShouldPanic)
	})
}
