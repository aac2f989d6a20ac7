package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRecorder(t *testing.T) {
	Convey("Given a recorder on a fresh registry", t, func() {
		reg := prometheus.NewRegistry()
		r := New(reg)

		Convey("When outcomes are added", func() {
			r.AddOutcomes("walk", 3)
			r.AddOutcomes("in_play", 7)
			r.AddOutcomes("strikeout", 0)

			Convey("Then per-outcome and total counters move", func() {
				So(testutil.ToFloat64(r.outcomes.WithLabelValues("walk")), ShouldEqual, 3)
				So(testutil.ToFloat64(r.outcomes.WithLabelValues("in_play")), ShouldEqual, 7)
				So(testutil.ToFloat64(r.plateAppearances), ShouldEqual, 10)
			})
		})

		Convey("When a run starts and finishes", func() {
			r.RunStarted()
			So(testutil.ToFloat64(r.activeRuns), ShouldEqual, 1)
			r.RunFinished("completed", 250*time.Millisecond)

			Convey("Then the gauge drops and the status is counted", func() {
				So(testutil.ToFloat64(r.activeRuns), ShouldEqual, 0)
				So(testutil.ToFloat64(r.runs.WithLabelValues("completed")), ShouldEqual, 1)
				So(testutil.CollectAndCount(r.runDuration), ShouldEqual, 1)
			})
		})

		Convey("When HTTP requests are observed", func() {
			r.ObserveHTTP("POST", "/resolve", "200", time.Millisecond)
			r.ObserveHTTP("POST", "/resolve", "200", time.Millisecond)

			Convey("Then they are counted by route", func() {
				So(testutil.ToFloat64(r.httpRequests.WithLabelValues("POST", "/resolve", "200")), ShouldEqual, 2)
			})
		})

		Convey("When the handler is scraped", func() {
			r.AddOutcomes("home_run", 1)
			rec := httptest.NewRecorder()
			Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
			body, _ := io.ReadAll(rec.Body)

			Convey("Then the exposition contains the service metrics", func() {
				So(rec.Code, ShouldEqual, 200)
				So(string(body), ShouldContainSubstring, `sim_engine_outcomes_total{outcome="home_run"} 1`)
			})
		})
	})
}

func TestRecorderOptions(t *testing.T) {
	Convey("Given a custom namespace", t, func() {
		reg := prometheus.NewRegistry()
		r := New(reg, WithNamespace("test"), WithHistogramBuckets([]float64{0.1, 1}))
		r.AddOutcomes("walk", 1)

		Convey("Then metric names use it", func() {
			families, err := reg.Gather()
			So(err, ShouldBeNil)
			names := map[string]bool{}
			for _, f := range families {
				names[f.GetName()] = true
			}
			So(names["test_outcomes_total"], ShouldBeTrue)
		})
	})
}

func TestNilRecorder(t *testing.T) {
	Convey("Given a nil recorder", t, func() {
		var r *Recorder

		Convey("Then every method is a no-op", func() {
			So(func() {
				r.AddOutcomes("walk", 1)
				r.RunStarted()
				r.RunFinished("error", time.Second)
				r.ObserveHTTP("GET", "/health", "200", time.Millisecond)
			}, ShouldNotPanic)
		})
	})
}
