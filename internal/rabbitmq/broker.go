package rabbitmq

import (
	"context"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Минимальные контракты над amqp091-go, чтобы подменять брокер фейками в тестах.
// *amqp.Channel удовлетворяет Channel напрямую; *amqp.Connection оборачивается amqpConnection.

// Dialer — установка транспортного соединения с брокером.
type Dialer interface {
	Dial(ctx context.Context, uri string) (Connection, error)
}

// Connection — соединение AMQP. Общее для всех воркеров; сами операции
// Channel/Close синхронизированы внутри amqp091-go.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Channel — канал AMQP. У каждого воркера собственный канал, ack-и не пересекаются между воркерами.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

var (
	_ Channel    = (*amqp.Channel)(nil)
	_ Connection = amqpConnection{}
	_ Dialer     = AMQPDialer{}
)

// dialTimeout — ограничение на TCP-подключение и AMQP-рукопожатие.
const dialTimeout = 30 * time.Second

// AMQPDialer — реальное подключение через amqp091-go.
type AMQPDialer struct {
	Heartbeat time.Duration
}

// Dial — подключается к брокеру; отмена ctx прерывает и TCP-подключение, и рукопожатие.
func (d AMQPDialer) Dial(ctx context.Context, uri string) (Connection, error) {
	var stopWatch func() bool
	conn, err := amqp.DialConfig(uri, amqp.Config{
		Heartbeat: d.Heartbeat,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			nd := net.Dialer{Timeout: dialTimeout}
			c, err := nd.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			// Дедлайн на рукопожатие; amqp091-go снимает его после открытия соединения.
			if err := c.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
				_ = c.Close()
				return nil, err
			}
			stopWatch = context.AfterFunc(ctx, func() { _ = c.Close() })
			return c, nil
		},
	})
	if stopWatch != nil && !stopWatch() {
		// ctx отменён во время рукопожатия: сокет уже закрыт
		if err == nil {
			_ = conn.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}
