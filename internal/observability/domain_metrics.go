package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudchat_chat_requests_total",
			Help: "Total number of chat requests by terminal outcome.",
		},
		[]string{"outcome"},
	)
	statementsGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudchat_statements_generated_total",
			Help: "Total number of SQL statements extracted from model completions.",
		},
	)
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudchat_validation_rejections_total",
			Help: "Total number of candidate statements rejected by the read-only policy.",
		},
		[]string{"rule"},
	)
	queryExecutionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fraudchat_query_execution_seconds",
			Help:    "Wall-clock latency of executed statements.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
	queryRowsTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudchat_query_rows_truncated_total",
			Help: "Total number of executed statements that hit the row cap.",
		},
	)
	llmRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudchat_llm_retries_total",
			Help: "Total number of LLM gateway retries by failure kind.",
		},
		[]string{"kind"},
	)
	explanationsAbsentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudchat_explanations_absent_total",
			Help: "Total number of chat responses that completed without an explanation.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		chatRequestsTotal,
		statementsGeneratedTotal,
		validationRejectionsTotal,
		queryExecutionSeconds,
		queryRowsTruncatedTotal,
		llmRetriesTotal,
		explanationsAbsentTotal,
	)
}

func ObserveChatOutcome(outcome string) {
	chatRequestsTotal.WithLabelValues(outcome).Inc()
}

func IncrementStatementGenerated() {
	statementsGeneratedTotal.Inc()
}

func IncrementValidationRejection(rule string) {
	validationRejectionsTotal.WithLabelValues(rule).Inc()
}

func ObserveQueryExecution(elapsed time.Duration, truncated bool) {
	queryExecutionSeconds.Observe(elapsed.Seconds())
	if truncated {
		queryRowsTruncatedTotal.Inc()
	}
}

func IncrementLLMRetry(kind string) {
	llmRetriesTotal.WithLabelValues(kind).Inc()
}

func IncrementExplanationAbsent() {
	explanationsAbsentTotal.Inc()
}
