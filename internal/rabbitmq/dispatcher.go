package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
	"github.com/Gunvolt24/amqp_receiver/internal/ports"
	"github.com/Gunvolt24/amqp_receiver/pkg/ctxmeta"
	"github.com/Gunvolt24/amqp_receiver/pkg/metrics"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Gunvolt24/amqp_receiver/internal/rabbitmq"

// dispatcher — доставка одного сообщения в EventSink и подтверждение брокеру.
// Вызывается синхронно из горутины воркера; собственного состояния между доставками нет.
type dispatcher struct {
	sink    ports.EventSink
	log     ports.Logger
	queue   string
	ackMode AckMode
	tracer  trace.Tracer
	now     func() time.Time
}

func newDispatcher(sink ports.EventSink, log ports.Logger, queue string, mode AckMode) *dispatcher {
	return &dispatcher{
		sink:    sink,
		log:     log,
		queue:   queue,
		ackMode: mode,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// dispatch — Accept, затем ack/nack по AckMode. Возвращает ошибку sink (обёрнутую ErrSink)
// только для наблюдаемости: воркер на неё не реагирует и продолжает работу.
func (d *dispatcher) dispatch(ctx context.Context, msg amqp.Delivery) error {
	delivery := toDelivery(msg, d.now())

	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers))
	ctx = ctxmeta.WithDeliveryID(ctx, delivery.ID)
	ctx = ctxmeta.WithQueue(ctx, d.queue)
	ctx, span := d.tracer.Start(ctx, "amqp.deliver",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", d.queue),
			attribute.String("messaging.message.id", delivery.ID),
			attribute.Int("messaging.message.body.size", len(delivery.Payload)),
			attribute.Bool("messaging.rabbitmq.redelivered", delivery.Redelivered),
		),
	)
	defer span.End()

	metrics.DeliveriesReceived.WithLabelValues(d.queue).Inc()
	inflight := metrics.InFlight.WithLabelValues(d.queue)
	inflight.Inc()
	defer inflight.Dec()

	d.log.Debugf(ctx, "delivery received: tag=%d size=%d redelivered=%t",
		delivery.Tag, len(delivery.Payload), delivery.Redelivered)

	if err := d.accept(ctx, delivery.Payload); err != nil {
		sinkErr := fmt.Errorf("%w: %v", ErrSink, err)
		metrics.SinkFailures.WithLabelValues(d.queue).Inc()
		span.RecordError(sinkErr)
		span.SetStatus(codes.Error, sinkErr.Error())

		if d.ackMode == AckOnSuccess {
			d.log.Warnf(ctx, "%v; delivery %s returned to queue", sinkErr, delivery.ID)
			d.requeue(ctx, msg)
		} else {
			d.log.Errorf(ctx, "%v; delivery %s acknowledged and dropped", sinkErr, delivery.ID)
			d.ack(ctx, msg)
		}
		return sinkErr
	}

	d.ack(ctx, msg)
	return nil
}

// accept — вызов sink с перехватом паники: паника считается отказом sink.
func (d *dispatcher) accept(ctx context.Context, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in sink: %v", r)
		}
	}()
	return d.sink.Accept(ctx, payload)
}

func (d *dispatcher) ack(ctx context.Context, msg amqp.Delivery) {
	if err := msg.Ack(false); err != nil {
		d.log.Warnf(ctx, "ack delivery tag=%d: %v", msg.DeliveryTag, err)
		return
	}
	metrics.DeliveriesAcked.WithLabelValues(d.queue).Inc()
}

// requeue — возврат сообщения брокеру для повторной доставки.
func (d *dispatcher) requeue(ctx context.Context, msg amqp.Delivery) {
	if err := msg.Nack(false, true); err != nil {
		d.log.Warnf(ctx, "nack delivery tag=%d: %v", msg.DeliveryTag, err)
		return
	}
	metrics.DeliveriesRejected.WithLabelValues(d.queue).Inc()
}

// toDelivery — копия тела из буфера брокера и метаданные доставки.
func toDelivery(msg amqp.Delivery, receivedAt time.Time) domain.Delivery {
	id := msg.MessageId
	if id == "" {
		id = uuid.NewString()
	}
	payload := make([]byte, len(msg.Body))
	copy(payload, msg.Body)
	return domain.Delivery{
		ID:          id,
		Tag:         msg.DeliveryTag,
		Payload:     payload,
		ReceivedAt:  receivedAt,
		Redelivered: msg.Redelivered,
	}
}

// headerCarrier — заголовки AMQP как носитель контекста трассировки (traceparent и т.п.).
type headerCarrier amqp.Table

var _ propagation.TextMapCarrier = headerCarrier(nil)

func (h headerCarrier) Get(key string) string {
	switch v := h[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func (h headerCarrier) Set(key, value string) {
	if h != nil {
		h[key] = value
	}
}

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}
