// Package metrics khai báo các chỉ số Prometheus của studio.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PruneDeleteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studio_prune_remote_delete_failures_total",
		Help: "Number of best-effort remote node deletions that failed",
	})

	PrunedNodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studio_pruned_nodes_total",
		Help: "Number of nodes removed locally by pruning or user deletion",
	})

	StreamRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studio_stream_runs_total",
		Help: "Streaming generation runs by outcome",
	}, []string{"outcome"})

	StreamFragments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studio_stream_fragments_total",
		Help: "Text fragments appended to nodes from generation streams",
	})

	StreamMalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studio_stream_malformed_frames_total",
		Help: "Stream frames skipped because they could not be decoded",
	})

	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studio_generation_duration_seconds",
		Help:    "Duration of generation requests",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"kind"})

	AutosaveRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studio_autosave_runs_total",
		Help: "Autosave attempts by outcome",
	}, []string{"outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studio_active_sessions",
		Help: "Number of podcast workspaces currently loaded in memory",
	})
)

// Handler trả về endpoint /metrics cho gin
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
