package rabbitmq

import (
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Значения по умолчанию.
const (
	DefaultURI          = "amqp://localhost"
	DefaultQueue        = "sitewhere.input"
	DefaultConsumers    = 5
	DefaultPrefetch     = 1
	DefaultDrainTimeout = 10 * time.Second
	DefaultHeartbeat    = 10 * time.Second
	DefaultConsumerTag  = "receiver"
)

// AckMode — когда подтверждать доставку относительно результата EventSink.
type AckMode string

const (
	// AckAlways — подтверждаем после вызова sink независимо от результата (at-most-once).
	AckAlways AckMode = "always"
	// AckOnSuccess — подтверждаем только при успехе, иначе nack с requeue (повторная доставка брокером).
	AckOnSuccess AckMode = "on_success"
)

// Config — параметры приёмника. После Start не меняется (приёмник хранит копию).
type Config struct {
	URI          string
	Queue        string
	Consumers    int
	Prefetch     int
	DrainTimeout time.Duration
	Heartbeat    time.Duration
	AckMode      AckMode
	ConsumerTag  string
}

// withDefaults — нулевые значения заменяются значениями по умолчанию.
func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.URI) == "" {
		c.URI = DefaultURI
	}
	if strings.TrimSpace(c.Queue) == "" {
		c.Queue = DefaultQueue
	}
	if c.Consumers == 0 {
		c.Consumers = DefaultConsumers
	}
	if c.Prefetch == 0 {
		c.Prefetch = DefaultPrefetch
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	c.AckMode = AckMode(strings.ToLower(strings.TrimSpace(string(c.AckMode))))
	if c.AckMode == "" {
		c.AckMode = AckAlways
	}
	if strings.TrimSpace(c.ConsumerTag) == "" {
		c.ConsumerTag = DefaultConsumerTag
	}
	return c
}

// validate — проверка уже нормализованной конфигурации.
func (c Config) validate() error {
	if c.Consumers < 1 {
		return fmt.Errorf("%w: consumers must be positive, got %d", ErrInvalidConfig, c.Consumers)
	}
	if c.Prefetch < 0 {
		return fmt.Errorf("%w: prefetch must be non-negative, got %d", ErrInvalidConfig, c.Prefetch)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("%w: drain timeout must be non-negative, got %s", ErrInvalidConfig, c.DrainTimeout)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("%w: heartbeat must be non-negative, got %s", ErrInvalidConfig, c.Heartbeat)
	}
	switch c.AckMode {
	case AckAlways, AckOnSuccess:
	default:
		return fmt.Errorf("%w: unknown ack mode %q", ErrInvalidConfig, c.AckMode)
	}
	if _, err := amqp.ParseURI(c.URI); err != nil {
		return fmt.Errorf("%w: uri: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Normalize — применяет значения по умолчанию и валидирует конфигурацию.
func (c Config) Normalize() (Config, error) {
	n := c.withDefaults()
	if err := n.validate(); err != nil {
		return Config{}, err
	}
	return n, nil
}
