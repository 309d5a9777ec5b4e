package rabbitmq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Ошибки приёмника. Оборачиваются через %w, проверяются errors.Is.
var (
	// ErrInvalidConfig — конфигурация не прошла валидацию.
	ErrInvalidConfig = errors.New("invalid receiver config")
	// ErrConnection — не удалось установить соединение с брокером (фатально для Start).
	ErrConnection = errors.New("cannot connect to broker")
	// ErrTopology — очередь не удалось объявить (в т.ч. несовместимое повторное объявление).
	ErrTopology = errors.New("queue declaration failed")
	// ErrConnectionLost — соединение потеряно во время работы; приёмник остановлен.
	ErrConnectionLost = errors.New("broker connection lost")
	// ErrDrainTimeout — не дождались завершения обработки при остановке (не фатально).
	ErrDrainTimeout = errors.New("drain timeout elapsed")
	// ErrSink — приёмник событий отклонил payload (не фатально для воркера).
	ErrSink = errors.New("event sink rejected payload")
	// ErrInvalidState — переход жизненного цикла недопустим из текущего состояния.
	ErrInvalidState = errors.New("invalid receiver state")
	// ErrStartAborted — Start прерван вызовом Stop.
	ErrStartAborted = fmt.Errorf("%w: start aborted by stop", ErrInvalidState)
)

// isPreconditionFailed — 406 PRECONDITION_FAILED: очередь уже существует с другими свойствами.
func isPreconditionFailed(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed
}

// isNotFound — 404 NOT_FOUND: очередь удалена или не существует.
func isNotFound(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound
}
