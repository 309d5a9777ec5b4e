package ports

import (
	"context"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
)

// EventCache — кэш последних событий.
// Требования к реализации: потокобезопасность; доступ по ключу не хуже O(1); возврат копий.
type EventCache interface {
	// Get — вернуть событие по ID; (event, true) при попадании, (nil, false) при промахе/истечении.
	Get(ctx context.Context, id string) (*domain.Event, bool)

	// Set — сохранить/обновить событие в кэше.
	Set(ctx context.Context, event *domain.Event) error

	// WarmUp — массовая загрузка кэша (например, при старте).
	WarmUp(ctx context.Context, events []*domain.Event) error
}
