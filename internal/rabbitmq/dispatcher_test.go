package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Gunvolt24/amqp_receiver/internal/ports/mocks"
	"github.com/Gunvolt24/amqp_receiver/pkg/ctxmeta"
)

func newTestDelivery(acker *fakeAcker, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  tag,
		MessageId:    "m-1",
		Body:         []byte(body),
	}
}

// Успех: payload передан как есть, контекст содержит delivery id и очередь, ack
func TestDispatch_Success_Acks(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockEventSink(ctrl)
	acker := newFakeAcker()

	sink.EXPECT().Accept(gomock.Any(), []byte("payload")).
		DoAndReturn(func(ctx context.Context, _ []byte) error {
			if id, _ := ctxmeta.DeliveryIDFromContext(ctx); id != "m-1" {
				t.Fatalf("want delivery id m-1, got %q", id)
			}
			if q, _ := ctxmeta.QueueFromContext(ctx); q != "test.in" {
				t.Fatalf("want queue test.in, got %q", q)
			}
			return nil
		})

	d := newDispatcher(sink, nopLogger{}, "test.in", AckAlways)
	if err := d.dispatch(context.Background(), newTestDelivery(acker, 7, "payload")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if acker.acked[7] != 1 {
		t.Fatalf("want delivery 7 acked once, got %d", acker.acked[7])
	}
}

// Пустой payload не фильтруется
func TestDispatch_EmptyPayload_PassedThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockEventSink(ctrl)
	acker := newFakeAcker()

	sink.EXPECT().Accept(gomock.Any(), []byte{}).Return(nil)

	d := newDispatcher(sink, nopLogger{}, "test.in", AckAlways)
	if err := d.dispatch(context.Background(), newTestDelivery(acker, 1, "")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if acker.acked[1] != 1 {
		t.Fatal("empty payload must be acked")
	}
}

// Ошибка sink в режиме always => ErrSink, но ack
func TestDispatch_SinkError_AckAlways(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockEventSink(ctrl)
	acker := newFakeAcker()

	sink.EXPECT().Accept(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	d := newDispatcher(sink, nopLogger{}, "test.in", AckAlways)
	err := d.dispatch(context.Background(), newTestDelivery(acker, 2, "x"))
	if !errors.Is(err, ErrSink) {
		t.Fatalf("want ErrSink, got %v", err)
	}
	if acker.acked[2] != 1 || acker.requeued[2] != 0 {
		t.Fatalf("want ack without requeue, got acked=%d requeued=%d", acker.acked[2], acker.requeued[2])
	}
}

// Ошибка sink в режиме on_success => nack с requeue
func TestDispatch_SinkError_OnSuccessRequeues(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockEventSink(ctrl)
	acker := newFakeAcker()

	sink.EXPECT().Accept(gomock.Any(), gomock.Any()).Return(errors.New("kafka unavailable"))

	d := newDispatcher(sink, nopLogger{}, "test.in", AckOnSuccess)
	err := d.dispatch(context.Background(), newTestDelivery(acker, 3, "x"))
	if !errors.Is(err, ErrSink) {
		t.Fatalf("want ErrSink, got %v", err)
	}
	if acker.acked[3] != 0 || acker.requeued[3] != 1 {
		t.Fatalf("want requeue, got acked=%d requeued=%d", acker.acked[3], acker.requeued[3])
	}
}

// Паника в sink перехватывается и считается ошибкой sink
func TestDispatch_SinkPanic_Recovered(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockEventSink(ctrl)
	acker := newFakeAcker()

	sink.EXPECT().Accept(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, []byte) error { panic("nil map") })

	d := newDispatcher(sink, nopLogger{}, "test.in", AckAlways)
	err := d.dispatch(context.Background(), newTestDelivery(acker, 4, "x"))
	if !errors.Is(err, ErrSink) {
		t.Fatalf("want ErrSink, got %v", err)
	}
	if acker.acked[4] != 1 {
		t.Fatal("delivery must be acked after recovered panic")
	}
}

// Ошибка ack (канал закрыт) только логируется
func TestDispatch_AckError_NotPropagated(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockEventSink(ctrl)
	acker := newFakeAcker()
	acker.err = amqp.ErrClosed

	sink.EXPECT().Accept(gomock.Any(), gomock.Any()).Return(nil)

	d := newDispatcher(sink, nopLogger{}, "test.in", AckAlways)
	if err := d.dispatch(context.Background(), newTestDelivery(acker, 5, "x")); err != nil {
		t.Fatalf("ack failure must not fail dispatch, got %v", err)
	}
}

// Без message-id генерируется uuid; тело копируется из буфера брокера
func TestToDelivery_GeneratesIDAndCopiesBody(t *testing.T) {
	body := []byte("abc")
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	got := toDelivery(amqp.Delivery{DeliveryTag: 9, Body: body, Redelivered: true}, now)

	if len(got.ID) != 36 {
		t.Fatalf("want generated uuid, got %q", got.ID)
	}
	if got.Tag != 9 || !got.Redelivered || !got.ReceivedAt.Equal(now) {
		t.Fatalf("unexpected delivery: %+v", got)
	}
	body[0] = 'X'
	if string(got.Payload) != "abc" {
		t.Fatalf("payload must be a copy, got %q", got.Payload)
	}
}

func TestHeaderCarrier_Get(t *testing.T) {
	h := headerCarrier(amqp.Table{
		"traceparent": "00-abc-def-01",
		"raw":         []byte("bytes"),
		"num":         int32(1),
	})
	if h.Get("traceparent") != "00-abc-def-01" {
		t.Fatal("string header not read")
	}
	if h.Get("raw") != "bytes" {
		t.Fatal("byte header not read")
	}
	if h.Get("num") != "" || h.Get("missing") != "" {
		t.Fatal("non-string headers must be ignored")
	}
	if len(h.Keys()) != 3 {
		t.Fatalf("want 3 keys, got %d", len(h.Keys()))
	}
}
