package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AdapterRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_adapter_requests_total",
		Help: "Source adapter calls by adapter and result kind",
	}, []string{"adapter", "result"})

	AdapterDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvest_adapter_duration_seconds",
		Help:    "Duration of source adapter calls",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
	}, []string{"adapter"})

	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_jobs_total",
		Help: "Finished harvest jobs by terminal status",
	}, []string{"status"})

	RecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_records_total",
		Help: "Corpus records emitted by type",
	}, []string{"type"})

	RecordsFilteredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_records_filtered_total",
		Help: "Records dropped by the noise filter by type",
	}, []string{"type"})

	CommunitiesFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvest_communities_failed_total",
		Help: "Communities for which every adapter failed",
	})

	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_job_duration_seconds",
		Help:    "Wall-clock duration of harvest jobs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

var registerOnce sync.Once

// MustRegister registers the harvest collectors once per process.
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			AdapterRequestsTotal,
			AdapterDuration,
			JobsTotal,
			RecordsTotal,
			RecordsFilteredTotal,
			CommunitiesFailedTotal,
			JobDuration,
		)
	})
}

// ObserveAdapterCall records the duration and result of one adapter call.
func ObserveAdapterCall(adapter, result string, start time.Time) {
	if adapter == "" {
		adapter = "unknown"
	}
	AdapterDuration.WithLabelValues(adapter).Observe(time.Since(start).Seconds())
	AdapterRequestsTotal.WithLabelValues(adapter, result).Inc()
}

// ObserveJob records a finished job.
func ObserveJob(status string, elapsed time.Duration, failedCommunities int) {
	JobsTotal.WithLabelValues(status).Inc()
	JobDuration.Observe(elapsed.Seconds())
	if failedCommunities > 0 {
		CommunitiesFailedTotal.Add(float64(failedCommunities))
	}
}

// AddRecords counts records kept and dropped for one record type.
func AddRecords(recordType string, kept, dropped int) {
	if kept > 0 {
		RecordsTotal.WithLabelValues(recordType).Add(float64(kept))
	}
	if dropped > 0 {
		RecordsFilteredTotal.WithLabelValues(recordType).Add(float64(dropped))
	}
}
