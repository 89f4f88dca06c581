package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the pipeline metrics. It is separate from the default
// registry so a one-shot run can dump exactly these series.
var Registry = prometheus.NewRegistry()

var (
	loadsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "binsize_snapshot_loads_total",
		Help: "Snapshot loads by result",
	}, []string{"result"})

	phaseDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "binsize_snapshot_phase_duration_seconds",
		Help:    "Duration of each pipeline phase",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
	}, []string{"phase"})

	itemsGauge = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "binsize_snapshot_items",
		Help: "Items in the most recent snapshot",
	}, []string{"class"})

	bytesGauge = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "binsize_snapshot_bytes",
		Help: "Attributed bytes in the most recent snapshot",
	}, []string{"class"})

	swapsTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "binsize_snapshot_swaps_total",
		Help: "Snapshots installed by a store",
	})
)

// WriteMetrics writes the pipeline metrics to path in the node exporter
// textfile format.
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
