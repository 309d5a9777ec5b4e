package ports

import (
	"context"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
)

// EventArchive — архивирование событий во внешнее объектное хранилище.
type EventArchive interface {
	Store(ctx context.Context, event *domain.Event) error
}
