package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the Kafka front-end.
type Metrics struct {
	BytesRead      prometheus.Counter
	RecordsInvalid prometheus.Counter
	KafkaOffset    *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	bytesRead := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chunkindex_kafka_bytes_read_total",
		Help: "Total bytes read from Kafka",
	})

	recordsInvalid := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chunkindex_kafka_records_invalid_total",
		Help: "Total records that failed to decode as chunked-columns messages",
	})

	kafkaOffset := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chunkindex_kafka_offset",
		Help: "Current Kafka offset per partition",
	}, []string{"partition"})

	reg.MustRegister(bytesRead, recordsInvalid, kafkaOffset)

	return &Metrics{
		BytesRead:      bytesRead,
		RecordsInvalid: recordsInvalid,
		KafkaOffset:    kafkaOffset,
	}
}
