package datasets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are shared by every WindowDataset in the process.
var (
	rowsReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seriesfeed_dataset_rows_read_total",
		Help: "Total number of table rows appended to dataset buffers",
	})

	refillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seriesfeed_dataset_refills_total",
		Help: "Number of buffer trim-and-refill cycles",
	})

	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seriesfeed_dataset_batches_total",
		Help: "Number of batches served",
	})

	epochsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seriesfeed_dataset_epochs_total",
		Help: "Number of epochs fully served",
	})

	bufferRowsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seriesfeed_dataset_buffer_rows",
		Help: "Rows held by the most recently refilled dataset buffer",
	})

	refillDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "seriesfeed_dataset_refill_duration_seconds",
		Help:    "Duration of buffer refills, including chunk reads and conditioning",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.25, 1},
	})
)
