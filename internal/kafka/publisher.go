package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/Gunvolt24/amqp_receiver/internal/ports"
	"github.com/Gunvolt24/amqp_receiver/pkg/metrics"
)

var _ ports.EventPublisher = (*Publisher)(nil)

// writer — минимальный контракт над kafka.Writer, чтобы подменять его моками в тестах.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher — пересылка сырого payload в топик Kafka с повторами (equal-jitter backoff).
// Безопасен для одновременного вызова из всех воркеров приёмника.
type Publisher struct {
	writer       writer
	topic        string
	log          ports.Logger
	retryInitial time.Duration
	retryMax     time.Duration
	maxAttempts  int

	jitterMu   sync.Mutex
	jitterRand *rand.Rand

	closeOnce sync.Once
}

func NewPublisher(cfg *PublisherConfig, log ports.Logger) (*Publisher, error) {
	if cfg == nil || cfg.Topic == "" {
		return nil, errors.New("kafka publisher: topic is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka publisher: at least one broker is required")
	}
	return newPublisher(cfg.newWriter(), cfg, log), nil
}

func newPublisher(w writer, cfg *PublisherConfig, log ports.Logger) *Publisher {
	rInit := cfg.RetryInitial
	if rInit <= 0 {
		rInit = 200 * time.Millisecond
	}
	rMax := cfg.RetryMax
	if rMax <= 0 {
		rMax = 5 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	return &Publisher{
		writer:       w,
		topic:        cfg.Topic,
		log:          log,
		retryInitial: rInit,
		retryMax:     rMax,
		maxAttempts:  attempts,
		jitterRand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Publish — запись одного сообщения; key определяет партицию (hash).
// Контекст трассировки уходит в заголовки сообщения.
func (p *Publisher) Publish(ctx context.Context, key string, payload []byte) error {
	msg := kafka.Message{Key: []byte(key), Value: payload}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(&msg.Headers))

	retry := p.retryInitial
	for attempt := 1; ; attempt++ {
		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			metrics.KafkaMessagesPublished.WithLabelValues(p.topic).Inc()
			return nil
		}
		if ctx.Err() != nil || attempt >= p.maxAttempts {
			metrics.KafkaMessagesFailed.WithLabelValues(p.topic).Inc()
			return fmt.Errorf("publish to %s after %d attempt(s): %w", p.topic, attempt, err)
		}

		sleep := p.withJitterEqual(retry)
		p.log.Warnf(ctx, "kafka publish failed topic=%s attempt=%d/%d: %v (will retry in %s)",
			p.topic, attempt, p.maxAttempts, err, sleep)
		if !sleepWithBackoff(ctx, sleep) {
			metrics.KafkaMessagesFailed.WithLabelValues(p.topic).Inc()
			return fmt.Errorf("publish to %s: %w", p.topic, ctx.Err())
		}
		retry = p.nextBackoff(retry)
	}
}

// Close — сбрасывает буферы writer. Вызывается при остановке приложения.
func (p *Publisher) Close() (retErr error) {
	p.closeOnce.Do(func() {
		retErr = p.writer.Close()
	})
	return retErr
}

// sleepWithBackoff — ждёт d или отмену контекста.
func sleepWithBackoff(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// nextBackoff — удвоение с потолком retryMax.
func (p *Publisher) nextBackoff(current time.Duration) time.Duration {
	current *= 2
	if current > p.retryMax {
		return p.retryMax
	}
	return current
}

// withJitterEqual — половина задержки фиксирована, вторая половина случайна.
func (p *Publisher) withJitterEqual(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	p.jitterMu.Lock()
	jitter := time.Duration(p.jitterRand.Int63n(int64(d-half) + 1))
	p.jitterMu.Unlock()
	return half + jitter
}

// headerCarrier — заголовки Kafka как носитель контекста трассировки.
type headerCarrier []kafka.Header

func (h *headerCarrier) Get(key string) string {
	for _, hdr := range *h {
		if hdr.Key == key {
			return string(hdr.Value)
		}
	}
	return ""
}

func (h *headerCarrier) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*h))
	for _, hdr := range *h {
		keys = append(keys, hdr.Key)
	}
	return keys
}
