package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	answersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_answers_total",
			Help: "Total number of answers produced, by pipeline outcome.",
		},
		[]string{"outcome"},
	)
	answerLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analyst_answer_latency_ms",
			Help:    "End-to-end answer latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 50000},
		},
	)
	stageLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyst_stage_latency_ms",
			Help:    "Pipeline stage latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 50000},
		},
		[]string{"stage", "status"},
	)
	queryRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analyst_query_rows_total",
			Help: "Total number of rows returned by executed warehouse queries.",
		},
	)
	feedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_feedback_total",
			Help: "Total number of feedback submissions, by polarity and status.",
		},
		[]string{"positive", "status"},
	)
	conversationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "analyst_conversations_active",
			Help: "Current number of conversations held in memory.",
		},
	)
)

// Pipeline stage names used as the "stage" label.
const (
	StageAnalysis   = "analysis"
	StageQuery      = "query"
	StageCompletion = "completion"
	StageFallback   = "fallback"
)

// Answer outcomes used as the "outcome" label.
const (
	OutcomeGrounded = "grounded"
	OutcomeFallback = "fallback"
	OutcomeApology  = "apology"
)

func init() {
	prometheus.MustRegister(
		answersTotal,
		answerLatencyMs,
		stageLatencyMs,
		queryRowsTotal,
		feedbackTotal,
		conversationsActive,
	)
}

func ObserveAnswer(outcome string, elapsed time.Duration) {
	answersTotal.WithLabelValues(outcome).Inc()
	answerLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveStage(stage string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	stageLatencyMs.WithLabelValues(stage, status).Observe(float64(elapsed.Milliseconds()))
}

func AddQueryRows(rows int) {
	if rows > 0 {
		queryRowsTotal.Add(float64(rows))
	}
}

func ObserveFeedback(positive bool, status int) {
	polarity := "false"
	if positive {
		polarity = "true"
	}
	feedbackTotal.WithLabelValues(polarity, statusLabel(status)).Inc()
}

func SetConversationsActive(count int) {
	if count < 0 {
		count = 0
	}
	conversationsActive.Set(float64(count))
}
