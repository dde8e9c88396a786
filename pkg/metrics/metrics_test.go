package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it uses the scoreboard namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "scoreboard")
				So(manager.subsystem, ShouldEqual, "leaderboard")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})

				manager.submitRetries.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_submit_retries_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are given", func() {
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "scoreboard")
				So(manager.histogramBuckets, ShouldNotBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording submissions", func() {
			before := testutil.ToFloat64(globalManager.submissions.WithLabelValues("ok"))
			RecordSubmission("ok")
			RecordSubmission("ok")
			RecordSubmitLatency(3.5)
			RecordSubmitRetry()

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.submissions.WithLabelValues("ok")), ShouldEqual, before+2)
				So(testutil.ToFloat64(globalManager.submitRetries), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording ranking activity", func() {
			hits := testutil.ToFloat64(globalManager.cacheResults.WithLabelValues("hit"))
			RecordCacheResult("hit")
			RecordSnapshotRebuild(12)
			UpdateSnapshotGeneration(7)
			RecordInvalidation()
			RecordQueryLatency("top", 1.2)
			RecordQueryLatency("rank", 0.4)

			Convey("Then they are observable", func() {
				So(testutil.ToFloat64(globalManager.cacheResults.WithLabelValues("hit")), ShouldEqual, hits+1)
				So(testutil.ToFloat64(globalManager.snapshotGeneration), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.snapshotRebuilds), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording store and queue activity", func() {
			RecordStoreError("postgres", "conflict")
			RecordStoreLatency("postgres", "submit", 2)
			RecordRecomputeRepair()
			UpdateTotalPlayers(3)
			UpdateQueueSize(4)
			UpdateQueueCapacity(16)
			UpdateQueueUtilization(0.25)
			RecordQueueEnqueue()
			RecordQueueDequeue()
			RecordQueueEnqueueError()
			UpdateWorkerCount(2)
			RecordWorkerProcessingLatency(1)
			RecordWorkerError()
			RecordEventDuplicate()

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.totalPlayers), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.queueUtilization), ShouldEqual, 0.25)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.storeErrors.WithLabelValues("postgres", "conflict")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording HTTP and system metrics", func() {
			So(func() {
				RecordHTTPRequest("/api/leaderboard/top", "GET", "200")
				RecordHTTPRequestDuration("/api/leaderboard/top", "GET", "200", 1.5)
				RecordErrorByEndpoint("/api/leaderboard/submit", "POST", "not_found")
				RecordErrorByComponent("ranking", "cache")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)

			Convey("Then they are exported by the registry", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)

				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				joined := strings.Join(names, ",")
				So(joined, ShouldContainSubstring, "scoreboard_leaderboard_http_requests_total")
				So(joined, ShouldContainSubstring, "scoreboard_leaderboard_system_goroutine_count")
			})
		})
	})
}
