package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gunvolt24/amqp_receiver/internal/ports"
	"github.com/Gunvolt24/amqp_receiver/pkg/metrics"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// worker — один канал, одна подписка, одна горутина.
type worker struct {
	id         int
	tag        string
	ch         Channel
	deliveries <-chan amqp.Delivery
}

// pool — фиксированный набор воркеров поверх общего соединения.
// Создаётся на каждый Start и не переиспользуется после stop.
type pool struct {
	conn       Connection
	cfg        Config
	dispatcher *dispatcher
	log        ports.Logger

	// ctx воркеров: отменяется, если истёк drain timeout.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	workers  map[int]*worker
	stopCh   chan struct{}
	stopped  bool
	wg       sync.WaitGroup
	respawns atomic.Int64

	// failures — эскалация в жизненный цикл: подписку нельзя восстановить.
	failures chan error
}

func newPool(ctx context.Context, conn Connection, cfg Config, d *dispatcher, log ports.Logger) *pool {
	wctx, cancel := context.WithCancel(ctx)
	return &pool{
		conn:       conn,
		cfg:        cfg,
		dispatcher: d,
		log:        log,
		ctx:        wctx,
		cancel:     cancel,
		workers:    make(map[int]*worker, cfg.Consumers),
		stopCh:     make(chan struct{}),
		failures:   make(chan error, 1),
	}
}

// start — открывает Consumers подписок и запускает воркеры.
// При ошибке уже открытые каналы закрываются, горутины не запускаются.
func (p *pool) start() error {
	opened := make([]*worker, 0, p.cfg.Consumers)
	for i := 0; i < p.cfg.Consumers; i++ {
		w, err := p.openWorker(i)
		if err != nil {
			for _, o := range opened {
				_ = o.ch.Close()
			}
			p.cancel()
			return err
		}
		opened = append(opened, w)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range opened {
		p.workers[w.id] = w
		p.wg.Add(1)
		go p.run(w)
	}
	return nil
}

// openWorker — новый канал с prefetch и подписка с ручным подтверждением.
func (p *pool) openWorker(id int) (*worker, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel for consumer %d: %w", id, err)
	}
	if err := ch.Qos(p.cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set prefetch for consumer %d: %w", id, err)
	}
	tag := fmt.Sprintf("%s-%d-%s", p.cfg.ConsumerTag, id, uuid.NewString()[:8])
	deliveries, err := ch.Consume(p.cfg.Queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %q as %s: %w", p.cfg.Queue, tag, err)
	}
	return &worker{id: id, tag: tag, ch: ch, deliveries: deliveries}, nil
}

// run — последовательная обработка доставок одной подписки.
func (p *pool) run(w *worker) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			p.requeueBuffered(w)
			return
		case msg, ok := <-w.deliveries:
			if !ok {
				if !p.isStopping() {
					p.onSubscriptionClosed(w)
				}
				return
			}
			if p.isStopping() {
				p.requeue(msg)
				p.requeueBuffered(w)
				return
			}
			_ = p.dispatcher.dispatch(p.ctx, msg)
		}
	}
}

// onSubscriptionClosed — подписка закрылась не по нашей инициативе.
// Соединение живо: пересоздаём воркера на новом канале. Иначе эскалируем.
func (p *pool) onSubscriptionClosed(w *worker) {
	_ = w.ch.Close()
	if p.conn.IsClosed() {
		p.fail(fmt.Errorf("consumer %s: subscription closed with connection", w.tag))
		return
	}

	nw, err := p.openWorker(w.id)
	if err != nil {
		p.fail(fmt.Errorf("respawn consumer %d: %w", w.id, err))
		return
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		_ = nw.ch.Close()
		return
	}
	p.workers[nw.id] = nw
	p.wg.Add(1)
	p.mu.Unlock()

	p.respawns.Add(1)
	p.log.Warnf(p.ctx, "consumer %s lost its subscription, respawned as %s", w.tag, nw.tag)
	go p.run(nw)
}

// fail — неблокирующая эскалация: важен только первый отказ.
func (p *pool) fail(err error) {
	select {
	case p.failures <- err:
	default:
	}
}

func (p *pool) isStopping() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

// requeue — сообщение не было передано в sink, возвращаем его брокеру.
func (p *pool) requeue(msg amqp.Delivery) {
	if err := msg.Reject(true); err != nil {
		p.log.Warnf(p.ctx, "reject unprocessed delivery tag=%d: %v", msg.DeliveryTag, err)
		return
	}
	metrics.DeliveriesRejected.WithLabelValues(p.cfg.Queue).Inc()
}

// requeueBuffered — возвращает брокеру всё, что уже лежит в буфере подписки.
func (p *pool) requeueBuffered(w *worker) {
	for {
		select {
		case msg, ok := <-w.deliveries:
			if !ok {
				return
			}
			p.requeue(msg)
		default:
			return
		}
	}
}

// stop — отменяет подписки и ждёт текущие обработки не дольше timeout (или ctx).
// По истечении ожидания отменяет контекст воркеров и возвращает ErrDrainTimeout.
func (p *pool) stop(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	for _, w := range workers {
		if err := w.ch.Cancel(w.tag, false); err != nil {
			p.log.Debugf(ctx, "cancel consumer %s: %v", w.tag, err)
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	p.cancel()
	return fmt.Errorf("%w: workers still busy after %s", ErrDrainTimeout, timeout)
}

// closeChannels — закрывает каналы всех воркеров (после stop).
func (p *pool) closeChannels() {
	p.mu.Lock()
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	for _, w := range workers {
		if err := w.ch.Close(); err != nil {
			p.log.Debugf(p.ctx, "close channel of consumer %s: %v", w.tag, err)
		}
	}
}
