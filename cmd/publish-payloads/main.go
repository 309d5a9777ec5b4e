package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Gunvolt24/amqp_receiver/internal/rabbitmq"
	"github.com/Gunvolt24/amqp_receiver/pkg/payloadfile"
)

// amqpPublisher — публикация в очередь через default exchange с подтверждениями брокера.
type amqpPublisher struct {
	ch      *amqp.Channel
	queue   string
	timeout time.Duration
}

func (p *amqpPublisher) Publish(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Transient,
		Body:         payload,
	})
	if err != nil {
		return err
	}
	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("broker nacked message")
	}
	return nil
}

// CLI для ручной отправки payload в очередь приёмника.
func main() {
	uri := flag.String("uri", rabbitmq.DefaultURI, "AMQP URI")
	queue := flag.String("queue", rabbitmq.DefaultQueue, "target queue")
	inputPath := flag.String("in", "", "path to input file. If empty, reads from stdin.")
	formatStr := flag.String("format", "auto", "input format: auto|raw|lines")
	declare := flag.Bool("declare", true, "declare the queue with the receiver's parameters before publishing")
	timeout := flag.Duration("timeout", 5*time.Second, "per-message publish timeout")
	flag.Parse()

	format, err := payloadfile.ParseFormat(*formatStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := amqp.Dial(*uri)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "channel: %v\n", err)
		os.Exit(1)
	}
	defer ch.Close()

	if *declare {
		// те же параметры, что объявляет приёмник: иначе 406 PRECONDITION_FAILED
		if _, err := ch.QueueDeclare(*queue, false, false, false, false, nil); err != nil {
			fmt.Fprintf(os.Stderr, "declare queue: %v\n", err)
			os.Exit(1)
		}
	}
	if err := ch.Confirm(false); err != nil {
		fmt.Fprintf(os.Stderr, "confirm mode: %v\n", err)
		os.Exit(1)
	}

	pub := &amqpPublisher{ch: ch, queue: *queue, timeout: *timeout}
	res, err := payloadfile.PublishFile(ctx, pub, *inputPath, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "publish: %v (%s)\n", err, res)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "publish ok queue=%s (%s)\n", *queue, res)
}
