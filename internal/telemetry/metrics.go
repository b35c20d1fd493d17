package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ExportRequests   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "playlist_export_requests_total", Help: "Export requests by outcome"}, []string{"outcome"})
	ExportsPublished = prometheus.NewCounter(prometheus.CounterOpts{Name: "playlist_exports_published_total", Help: "Export jobs published to the queue"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "playlist_export_rate_limit_rejects_total", Help: "Export requests rejected by rate limiter"})

	WorkerSuccess    = prometheus.NewCounter(prometheus.CounterOpts{Name: "playlist_exports_sent_total", Help: "Exports delivered to the notification transport"})
	WorkerFailures   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "playlist_exports_failed_total", Help: "Export processing failures by stage"}, []string{"stage"})
	WorkerRequeued   = prometheus.NewCounter(prometheus.CounterOpts{Name: "playlist_exports_requeued_total", Help: "Exports scheduled for another attempt"})
	WorkerDeadLetter = prometheus.NewCounter(prometheus.CounterOpts{Name: "playlist_exports_dead_letter_total", Help: "Exports moved to the dead-letter list"})

	LeasesReclaimed = prometheus.NewCounter(prometheus.CounterOpts{Name: "queue_leases_reclaimed_total", Help: "Expired leases returned to the ready list"})
	QueueDepthGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "queue_depth", Help: "Ready messages per queue"}, []string{"queue"})
	InFlightGauge   = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "queue_inflight", Help: "Messages being handled by this process"}, []string{"queue"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ExportRequests,
			ExportsPublished,
			RateLimitRejects,
			WorkerSuccess,
			WorkerFailures,
			WorkerRequeued,
			WorkerDeadLetter,
			LeasesReclaimed,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
