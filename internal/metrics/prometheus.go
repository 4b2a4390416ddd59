package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instaflow_webhook_events_total",
			Help: "Total number of normalized webhook events",
		},
		[]string{"kind"},
	)

	FlowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instaflow_flow_runs_total",
			Help: "Total number of automation runs by execution mode and outcome",
		},
		[]string{"mode", "status"},
	)

	FlowRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "instaflow_flow_run_duration_seconds",
			Help:    "Automation run duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	ActionExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instaflow_action_executions_total",
			Help: "Total number of action node executions",
		},
		[]string{"sub_type", "status"},
	)

	AIGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instaflow_ai_generations_total",
			Help: "Total number of generative AI calls by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "instaflow_smartai_rate_limited_total",
			Help: "Number of SmartAI replies denied by the per-sender quota",
		},
	)

	TrackingDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "instaflow_tracking_dropped_total",
			Help: "Number of tracking events dropped because the queue was full",
		},
	)

	TrackingFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "instaflow_tracking_failed_total",
			Help: "Number of tracking events the sink failed to persist",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func StatusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
