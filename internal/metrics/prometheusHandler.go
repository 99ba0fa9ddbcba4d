package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var recordsIngested = promauto.NewCounter(prometheus.CounterOpts{
	Name: "records_ingested_total",
	Help: "Records accepted by the ingestion stage",
})

var tasksInQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "tasks_in_queue",
	Help: "Processing tasks waiting in the queue",
})

var activeWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "active_worker_count",
	Help: "Number of live insight workers",
})

var accessDenied = promauto.NewCounter(prometheus.CounterOpts{
	Name: "access_denied_total",
	Help: "Denied record access attempts (all audited)",
})

var searchesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "searches_total",
	Help: "Semantic search requests served",
})

var processingOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "record_processing_total",
	Help: "Insight stage outcomes labelled by result",
}, []string{"result"})

var processingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "record_processing_duration_seconds",
	Help:    "Wall time of one insight processing attempt.",
	Buckets: []float64{.5, 1, 2, 5, 10, 30, 60, 120},
}, []string{"result"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dependency_latency_seconds",
	Help:    "Latency of external capability calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"capability"})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

func IncrementRecordsIngested()  { recordsIngested.Inc() }
func IncrementTasksInQueue()     { tasksInQueue.Inc() }
func DecrementTasksInQueue()     { tasksInQueue.Dec() }
func IncrementActiveWorkers()    { activeWorkerCount.Inc() }
func DecrementActiveWorkers()    { activeWorkerCount.Dec() }
func IncrementAccessDenied()     { accessDenied.Inc() }
func IncrementSearches()         { searchesTotal.Inc() }

func CaptureProcessingMetrics(result string, elapsed time.Duration) {
	processingOutcomes.WithLabelValues(result).Inc()
	processingDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func CaptureDependencyMetrics(capability string, elapsed time.Duration) {
	dependencyLatency.WithLabelValues(capability).Observe(elapsed.Seconds())
}
