package ports

import "context"

// Receiver — жизненный цикл приёмника входящих сообщений.
type Receiver interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() string
	DisplayName() string
	// Failures — фатальные ошибки времени работы (например, потеря соединения).
	Failures() <-chan error
}
