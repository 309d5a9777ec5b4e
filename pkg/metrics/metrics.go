package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Метрики приёмника AMQP (label queue — имя очереди).
var (
	DeliveriesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amqp_deliveries_received_total",
			Help: "Number of deliveries received from the broker",
		},
		[]string{"queue"},
	)
	DeliveriesAcked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amqp_deliveries_acked_total",
			Help: "Number of deliveries acknowledged",
		},
		[]string{"queue"},
	)
	DeliveriesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amqp_deliveries_rejected_total",
			Help: "Number of deliveries rejected (nack) back to the broker",
		},
		[]string{"queue"},
	)
	SinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_failures_total",
			Help: "Number of payloads the event sink failed to accept",
		},
		[]string{"queue"},
	)
	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "amqp_inflight_deliveries",
			Help: "Deliveries currently being processed by the sink",
		},
		[]string{"queue"},
	)
	ReceiverState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "receiver_state",
			Help: "Receiver lifecycle state: 0=stopped 1=starting 2=running 3=stopping",
		},
		[]string{"queue"},
	)
)

// Метрики пересылки в Kafka.
var (
	KafkaMessagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_published_total",
			Help: "Number of payloads forwarded to Kafka",
		},
		[]string{"topic"},
	)
	KafkaMessagesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_failed_total",
			Help: "Number of payloads failed to forward to Kafka",
		},
		[]string{"topic"},
	)
)

var (
	CacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache operations",
		},
		[]string{"op"}, // hit|miss|evicted|expired
	)
	CacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_size",
			Help: "Number of items currently in cache",
		},
	)
)

var registerOnce sync.Once

// MustRegister — регистрирует метрики в глобальном реестре; повторные вызовы ничего не делают.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			DeliveriesReceived, DeliveriesAcked, DeliveriesRejected, SinkFailures, InFlight, ReceiverState,
			KafkaMessagesPublished, KafkaMessagesFailed,
			CacheOps, CacheSize,
		)
	})
}
