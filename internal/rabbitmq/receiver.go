package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/Gunvolt24/amqp_receiver/internal/ports"
	"github.com/Gunvolt24/amqp_receiver/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

// State — состояние жизненного цикла приёмника.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var _ ports.Receiver = (*Receiver)(nil)

// Receiver — приёмник сообщений из очереди RabbitMQ.
// Переходы состояний сериализованы мьютексом; сетевые операции выполняются без блокировки.
type Receiver struct {
	cfg    Config
	dialer Dialer
	sink   ports.EventSink
	log    ports.Logger

	mu          sync.Mutex
	state       State
	conn        Connection
	pool        *pool
	abort       chan struct{} // закрывается Stop во время Starting
	cancelStart context.CancelFunc
	startDone   chan struct{}
	monitorDone chan struct{}

	failures chan error
}

// NewReceiver — конфигурация нормализуется и копируется; dialer по умолчанию — AMQPDialer.
func NewReceiver(cfg Config, dialer Dialer, sink ports.EventSink, log ports.Logger) (*Receiver, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: event sink is required", ErrInvalidConfig)
	}
	if log == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}
	normalized, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	if dialer == nil {
		dialer = AMQPDialer{Heartbeat: normalized.Heartbeat}
	}
	r := &Receiver{
		cfg:      normalized,
		dialer:   dialer,
		sink:     sink,
		log:      log,
		failures: make(chan error, 1),
	}
	metrics.ReceiverState.WithLabelValues(normalized.Queue).Set(float64(StateStopped))
	return r, nil
}

// Config — действующая (нормализованная) конфигурация.
func (r *Receiver) Config() Config { return r.cfg }

// State — текущее состояние.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status — состояние строкой (для ops API).
func (r *Receiver) Status() string { return r.State().String() }

// DisplayName — "RabbitMQ uri=<uri> queue=<queue>", пароль в URI скрыт.
func (r *Receiver) DisplayName() string {
	return fmt.Sprintf("RabbitMQ uri=%s queue=%s", redactURI(r.cfg.URI), r.cfg.Queue)
}

// Failures — ошибки, из-за которых приёмник остановился сам (ErrConnectionLost).
// Буфер на одну ошибку; если никто не читает, последующие отбрасываются.
func (r *Receiver) Failures() <-chan error { return r.failures }

// setState — только под r.mu.
func (r *Receiver) setState(s State) {
	r.state = s
	metrics.ReceiverState.WithLabelValues(r.cfg.Queue).Set(float64(s))
}

// Start — подключение, объявление очереди, запуск воркеров. Допустим только из Stopped.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateStopped {
		st := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidState, st)
	}
	r.setState(StateStarting)
	abort := make(chan struct{})
	startDone := make(chan struct{})
	// Stop отменяет и незавершённый Dial.
	startCtx, cancelStart := context.WithCancel(ctx)
	r.abort, r.cancelStart, r.startDone = abort, cancelStart, startDone
	r.mu.Unlock()
	defer close(startDone)
	defer cancelStart()

	conn, closeCh, p, err := r.launch(startCtx, abort)

	r.mu.Lock()
	r.cancelStart = nil
	if err != nil {
		if aborted(abort) {
			r.log.Infof(ctx, "rabbitmq receiver start aborted by stop: %v", err)
			err = ErrStartAborted
		}
		r.abort = nil
		r.setState(StateStopped)
		r.mu.Unlock()
		return err
	}
	if aborted(abort) {
		r.mu.Unlock()
		r.log.Infof(ctx, "rabbitmq receiver start aborted by stop")
		_ = r.shutdown(ctx, conn, p)
		r.mu.Lock()
		r.setState(StateStopped)
		r.mu.Unlock()
		return ErrStartAborted
	}
	r.abort = nil
	r.conn, r.pool = conn, p
	monitorDone := make(chan struct{})
	r.monitorDone = monitorDone
	r.setState(StateRunning)
	r.mu.Unlock()

	go r.monitor(conn, closeCh, p, monitorDone)

	r.log.Infof(ctx, "rabbitmq receiver started: %s consumers=%d prefetch=%d ack_mode=%s",
		r.DisplayName(), r.cfg.Consumers, r.cfg.Prefetch, r.cfg.AckMode)
	return nil
}

// launch — сетевая часть Start, выполняется без блокировки.
func (r *Receiver) launch(ctx context.Context, abort <-chan struct{}) (Connection, chan *amqp.Error, *pool, error) {
	display := redactURI(r.cfg.URI)

	conn, err := r.dialer.Dial(ctx, r.cfg.URI)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, display, err)
	}
	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	r.log.Infof(ctx, "rabbitmq receiver connected to: %s", display)

	if aborted(abort) {
		_ = conn.Close()
		return nil, nil, nil, ErrStartAborted
	}

	if err := r.declareQueue(conn); err != nil {
		_ = conn.Close()
		return nil, nil, nil, err
	}
	r.log.Infof(ctx, "rabbitmq receiver using queue: %s", r.cfg.Queue)

	if aborted(abort) {
		_ = conn.Close()
		return nil, nil, nil, ErrStartAborted
	}

	// Воркеры живут дольше запроса, который вызвал Start.
	wctx := context.WithoutCancel(ctx)
	d := newDispatcher(r.sink, r.log, r.cfg.Queue, r.cfg.AckMode)
	p := newPool(wctx, conn, r.cfg, d, r.log)
	if err := p.start(); err != nil {
		_ = conn.Close()
		if isNotFound(err) || isPreconditionFailed(err) {
			return nil, nil, nil, fmt.Errorf("%w: %v", ErrTopology, err)
		}
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return conn, closeCh, p, nil
}

// declareQueue — идемпотентное объявление: non-durable, non-exclusive, non-auto-delete.
func (r *Receiver) declareQueue(conn Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: open channel: %v", ErrConnection, err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(r.cfg.Queue, false, false, false, false, nil); err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("%w: queue %q exists with incompatible properties: %v", ErrTopology, r.cfg.Queue, err)
		}
		return fmt.Errorf("%w: declare queue %q: %v", ErrTopology, r.cfg.Queue, err)
	}
	return nil
}

// Stop — остановка с ожиданием текущих обработок. Из Stopped — no-op.
// Из Starting прерывает запуск и ждёт, пока Start освободит ресурсы.
func (r *Receiver) Stop(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateStopped:
		r.mu.Unlock()
		return nil
	case StateStopping:
		r.mu.Unlock()
		return fmt.Errorf("%w: stop already in progress", ErrInvalidState)
	case StateStarting:
		if r.abort == nil {
			r.mu.Unlock()
			return fmt.Errorf("%w: stop already in progress", ErrInvalidState)
		}
		close(r.abort)
		r.abort = nil
		if r.cancelStart != nil {
			r.cancelStart()
		}
		done := r.startDone
		r.mu.Unlock()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.setState(StateStopping)
	conn, p, monitorDone := r.conn, r.pool, r.monitorDone
	r.mu.Unlock()

	r.log.Infof(ctx, "rabbitmq receiver stopping: %s", r.DisplayName())
	err := r.shutdown(ctx, conn, p)
	<-monitorDone

	r.mu.Lock()
	r.conn, r.pool, r.monitorDone = nil, nil, nil
	r.setState(StateStopped)
	r.mu.Unlock()

	if err != nil {
		return err
	}
	r.log.Infof(ctx, "rabbitmq receiver stopped")
	return nil
}

// shutdown — отмена подписок, ожидание воркеров, закрытие каналов и соединения.
// Ошибка drain timeout не прерывает освобождение ресурсов.
func (r *Receiver) shutdown(ctx context.Context, conn Connection, p *pool) error {
	drainErr := p.stop(ctx, r.cfg.DrainTimeout)
	if drainErr != nil {
		r.log.Warnf(ctx, "rabbitmq receiver: %v; abandoning in-flight deliveries", drainErr)
	}
	p.closeChannels()
	if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		r.log.Warnf(ctx, "close rabbitmq connection: %v", err)
	}
	return drainErr
}

// monitor — ждёт потери соединения или отказа пула; в этом случае приёмник
// полностью останавливается (без переподключения) и сообщает ErrConnectionLost.
func (r *Receiver) monitor(conn Connection, closeCh chan *amqp.Error, p *pool, done chan struct{}) {
	defer close(done)

	var cause error
	select {
	case amqpErr, ok := <-closeCh:
		if !ok || amqpErr == nil {
			if p.isStopping() {
				return
			}
			cause = errors.New("connection closed")
		} else {
			cause = amqpErr
		}
	case err := <-p.failures:
		cause = err
	case <-p.stopCh:
		return
	}

	r.mu.Lock()
	if r.state != StateRunning || r.pool != p {
		r.mu.Unlock()
		return
	}
	r.setState(StateStopping)
	r.mu.Unlock()

	ctx := p.ctx
	lost := fmt.Errorf("%w: %v", ErrConnectionLost, cause)
	r.log.Errorf(ctx, "rabbitmq receiver %s: %v", r.DisplayName(), lost)

	if err := r.shutdown(ctx, conn, p); err != nil {
		r.log.Warnf(ctx, "rabbitmq receiver teardown after connection loss: %v", err)
	}

	r.mu.Lock()
	r.conn, r.pool, r.monitorDone = nil, nil, nil
	r.setState(StateStopped)
	r.mu.Unlock()

	select {
	case r.failures <- lost:
	default:
	}
}

func aborted(abort <-chan struct{}) bool {
	select {
	case <-abort:
		return true
	default:
		return false
	}
}

// redactURI — URI без пароля; неразбираемый URI отображается как есть.
func redactURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
