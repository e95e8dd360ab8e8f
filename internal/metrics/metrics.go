// Package metrics exposes practice and HTTP counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records practice session events. It implements practice.Metrics.
type Metrics struct {
	reg *prometheus.Registry

	droppedQuestions prometheus.Counter
	sessions         *prometheus.CounterVec
	answers          *prometheus.CounterVec
	cancellations    prometheus.Counter
	accuracy         prometheus.Histogram

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry together with the
// process and Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		droppedQuestions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drill_dropped_question_ids_total",
			Help: "Question ids listed in a qlist that did not resolve in the catalog",
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drill_sessions_total",
			Help: "Practice sessions by lifecycle event",
		}, []string{"event"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drill_answers_total",
			Help: "Recorded answers by correctness",
		}, []string{"correct"}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drill_answer_cancellations_total",
			Help: "Cancelled answers",
		}),
		accuracy: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drill_session_accuracy_percent",
			Help:    "Accuracy of completed sessions",
			Buckets: []float64{25, 50, 60, 70, 80, 90, 100},
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drill_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drill_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	m.reg.MustRegister(
		m.droppedQuestions, m.sessions, m.answers, m.cancellations, m.accuracy,
		m.requests, m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) QuestionsDropped(n int) { m.droppedQuestions.Add(float64(n)) }

func (m *Metrics) SessionStarted(review bool) {
	if review {
		m.sessions.WithLabelValues("review_started").Inc()
		return
	}
	m.sessions.WithLabelValues("started").Inc()
}

func (m *Metrics) SessionResumed() { m.sessions.WithLabelValues("resumed").Inc() }

func (m *Metrics) AnswerRecorded(correct bool) {
	m.answers.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

func (m *Metrics) AnswerCancelled() { m.cancellations.Inc() }

func (m *Metrics) SessionCompleted(accuracy float64) {
	m.sessions.WithLabelValues("completed").Inc()
	m.accuracy.Observe(accuracy)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Middleware counts requests by their chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
