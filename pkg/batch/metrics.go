package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for batch coordinators, labelled by Config.Name.
var (
	batchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_batch_requests_total",
		Help: "Total keys requested through a batch coordinator",
	}, []string{"batcher"})

	batchOrphanedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_batch_orphaned_total",
		Help: "Total pending requests overwritten by a later request for the same key",
	}, []string{"batcher"})

	batchFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_batch_flushes_total",
		Help: "Total flush cycles started",
	}, []string{"batcher"})

	batchChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_batch_chunks_total",
		Help: "Total chunks dispatched by outcome",
	}, []string{"batcher", "outcome"})

	batchChunkSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_batch_chunk_size",
		Help:    "Number of keys per dispatched chunk",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	}, []string{"batcher"})

	batchChunkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_batch_chunk_duration_seconds",
		Help:    "Duration of batch fetch calls in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"batcher"})

	batchNotFoundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_batch_not_found_total",
		Help: "Total keys rejected because no batch response mentioned them",
	}, []string{"batcher"})
)
