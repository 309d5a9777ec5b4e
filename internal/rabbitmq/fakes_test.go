package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

type nopLogger struct{}

func (nopLogger) Debugf(context.Context, string, ...any) {}
func (nopLogger) Infof(context.Context, string, ...any)  {}
func (nopLogger) Warnf(context.Context, string, ...any)  {}
func (nopLogger) Errorf(context.Context, string, ...any) {}

// fakeAcker — учёт ack/nack/reject по delivery tag.
type fakeAcker struct {
	mu       sync.Mutex
	acked    map[uint64]int
	requeued map[uint64]int
	dropped  map[uint64]int
	err      error
}

func newFakeAcker() *fakeAcker {
	return &fakeAcker{
		acked:    map[uint64]int{},
		requeued: map[uint64]int{},
		dropped:  map[uint64]int{},
	}
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.acked[tag]++
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	return a.Reject(tag, requeue)
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if requeue {
		a.requeued[tag]++
	} else {
		a.dropped[tag]++
	}
	return nil
}

// settled — сколько раз tag был подтверждён или отклонён любым способом.
func (a *fakeAcker) settled(tag uint64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acked[tag] + a.requeued[tag] + a.dropped[tag]
}

func (a *fakeAcker) counts() (acked, requeued int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, n := range a.acked {
		acked += n
	}
	for _, n := range a.requeued {
		requeued += n
	}
	return acked, requeued
}

// fakeChannel — канал с буферизованной подпиской.
type fakeChannel struct {
	conn *fakeConn

	mu         sync.Mutex
	closed     bool
	cancelled  bool
	tag        string
	prefetch   int
	deliveries chan amqp.Delivery
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.conn.mu.Lock()
	defer c.conn.mu.Unlock()
	if c.conn.declareErr != nil {
		return amqp.Queue{}, c.conn.declareErr
	}
	c.conn.declared = append(c.conn.declared, declaredQueue{name, durable, autoDelete, exclusive})
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if autoAck {
		return nil, errors.New("auto ack is not expected")
	}
	c.conn.mu.Lock()
	err := c.conn.consumeErr
	c.conn.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	c.tag = consumer
	c.deliveries = make(chan amqp.Delivery, 64)
	return c.deliveries, nil
}

func (c *fakeChannel) Cancel(consumer string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	if consumer == c.tag && !c.cancelled {
		c.cancelled = true
		close(c.deliveries)
	}
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.closed = true
	if c.deliveries != nil && !c.cancelled {
		c.cancelled = true
		close(c.deliveries)
	}
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// push — кладёт сообщение в буфер подписки, false если подписки нет.
func (c *fakeChannel) push(d amqp.Delivery) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deliveries == nil || c.cancelled {
		return false
	}
	c.deliveries <- d
	return true
}

type declaredQueue struct {
	name       string
	durable    bool
	autoDelete bool
	exclusive  bool
}

// fakeConn — соединение: выдаёт каналы, рассылает сообщения подпискам по кругу.
type fakeConn struct {
	acker *fakeAcker

	mu         sync.Mutex
	closed     bool
	channels   []*fakeChannel
	notify     []chan *amqp.Error
	declared   []declaredQueue
	declareErr error
	consumeErr error
	channelErr error

	nextTag atomic.Uint64
	rr      atomic.Uint64
}

func newFakeConn() *fakeConn {
	return &fakeConn{acker: newFakeAcker()}
}

func (c *fakeConn) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	if c.channelErr != nil {
		return nil, c.channelErr
	}
	ch := &fakeChannel{conn: c}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(receiver)
		return receiver
	}
	c.notify = append(c.notify, receiver)
	return receiver
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	return c.shutdown(nil)
}

// breakConnection — обрыв со стороны брокера.
func (c *fakeConn) breakConnection(reason *amqp.Error) {
	_ = c.shutdown(reason)
}

func (c *fakeConn) shutdown(reason *amqp.Error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return amqp.ErrClosed
	}
	c.closed = true
	notify := c.notify
	c.notify = nil
	channels := append([]*fakeChannel(nil), c.channels...)
	c.mu.Unlock()

	for _, n := range notify {
		if reason != nil {
			n <- reason
		}
		close(n)
	}
	for _, ch := range channels {
		_ = ch.Close()
	}
	return nil
}

// consumers — каналы с активной подпиской.
func (c *fakeConn) consumers() []*fakeChannel {
	c.mu.Lock()
	channels := append([]*fakeChannel(nil), c.channels...)
	c.mu.Unlock()

	var active []*fakeChannel
	for _, ch := range channels {
		ch.mu.Lock()
		if ch.deliveries != nil && !ch.cancelled {
			active = append(active, ch)
		}
		ch.mu.Unlock()
	}
	return active
}

func (c *fakeConn) allChannelsClosed() bool {
	c.mu.Lock()
	channels := append([]*fakeChannel(nil), c.channels...)
	c.mu.Unlock()
	for _, ch := range channels {
		if !ch.isClosed() {
			return false
		}
	}
	return true
}

// publish — доставка в одну из активных подписок (round-robin). Возвращает tag.
func (c *fakeConn) publish(body []byte) (uint64, error) {
	active := c.consumers()
	if len(active) == 0 {
		return 0, errors.New("no active consumers")
	}
	tag := c.nextTag.Add(1)
	d := amqp.Delivery{
		Acknowledger: c.acker,
		DeliveryTag:  tag,
		MessageId:    fmt.Sprintf("msg-%d", tag),
		Body:         body,
	}
	for i := 0; i < len(active); i++ {
		ch := active[int(c.rr.Add(1))%len(active)]
		if ch.push(d) {
			return tag, nil
		}
	}
	return 0, errors.New("no consumer accepted delivery")
}

// fakeDialer — выдаёт заранее подготовленное соединение.
type fakeDialer struct {
	conn  *fakeConn
	err   error
	gate  chan struct{} // если задан, Dial ждёт его закрытия
	// отмена ctx не прерывает ожидание gate (рукопожатие уже завершается)
	ignoreCtx bool
	dials     atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Connection, error) {
	d.dials.Add(1)
	if d.gate != nil && d.ignoreCtx {
		<-d.gate
	} else if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}
