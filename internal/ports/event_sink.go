package ports

import "context"

// EventSink — точка входа конвейера обработки событий.
// Реализация обязана быть потокобезопасной: Accept вызывается одновременно
// из всех воркеров пула потребителей.
type EventSink interface {
	Accept(ctx context.Context, payload []byte) error
}
