package kafka

import (
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// PublisherConfig — параметры пересылки payload в Kafka.
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	RequiredAcks string // all | one | none
	WriteTimeout time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
	MaxAttempts  int
}

// requiredAcks — разбор уровня подтверждений (регистр и пробелы не важны, по умолчанию all).
func (c *PublisherConfig) requiredAcks() kafka.RequiredAcks {
	switch strings.ToLower(strings.TrimSpace(c.RequiredAcks)) {
	case "one", "leader":
		return kafka.RequireOne
	case "none":
		return kafka.RequireNone
	default:
		return kafka.RequireAll
	}
}

// newWriter — kafka.Writer с одной попыткой записи: повторы делает Publisher.
func (c *PublisherConfig) newWriter() *kafka.Writer {
	wt := c.WriteTimeout
	if wt <= 0 {
		wt = 10 * time.Second
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           c.requiredAcks(),
		WriteTimeout:           wt,
		MaxAttempts:            1,
		BatchSize:              1,
		AllowAutoTopicCreation: true,
	}
}
