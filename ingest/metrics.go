package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the ingest path.
type Metrics struct {
	ChunksAccepted prometheus.Counter
	ShardingErrors prometheus.Counter
	BytesWritten   prometheus.Counter
	MailboxDepth   prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	chunksAccepted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chunkindex_ingest_chunks_accepted_total",
		Help: "Total chunks accepted, persisted, and acknowledged",
	})

	shardingErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chunkindex_ingest_sharding_errors_total",
		Help: "Total chunks rejected by validation or failed by the writer",
	})

	bytesWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chunkindex_ingest_bytes_written_total",
		Help: "Total column buffer bytes handed to the writer",
	})

	mailboxDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chunkindex_ingest_mailbox_depth",
		Help: "Chunks waiting in the controller mailbox",
	})

	reg.MustRegister(chunksAccepted, shardingErrors, bytesWritten, mailboxDepth)

	return &Metrics{
		ChunksAccepted: chunksAccepted,
		ShardingErrors: shardingErrors,
		BytesWritten:   bytesWritten,
		MailboxDepth:   mailboxDepth,
	}
}
