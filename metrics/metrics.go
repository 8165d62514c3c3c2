// Package metrics exposes portal counters on a private prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "achievement_portal"

type Metrics struct {
	registry *prometheus.Registry

	submitted       prometheus.Counter
	reviewed        *prometheus.CounterVec
	rankRecomputes  *prometheus.CounterVec
	bulkRows        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_submitted_total",
			Help:      "Achievements submitted, single and bulk.",
		}),
		reviewed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_reviewed_total",
			Help:      "Achievements moved out of pending, by resulting status.",
		}, []string{"status"}),
		rankRecomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_rank_recomputes_total",
			Help:      "Leaderboard re-rank runs by outcome.",
		}, []string{"outcome"}),
		bulkRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_import_rows_total",
			Help:      "Bulk import rows by outcome.",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submitted, m.reviewed, m.rankRecomputes, m.bulkRows, m.requestDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AchievementSubmitted() { m.submitted.Inc() }

func (m *Metrics) AchievementReviewed(status models.AchievementStatus) {
	m.reviewed.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) RanksRecomputed(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.rankRecomputes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BulkRowsImported(success, failed int) {
	m.bulkRows.WithLabelValues("success").Add(float64(success))
	m.bulkRows.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
