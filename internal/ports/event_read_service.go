package ports

import (
	"context"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
)

// EventReadService — сервис чтения принятых событий (для HTTP-слоя).
type EventReadService interface {
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	RecentEvents(ctx context.Context, limit, offset int) ([]*domain.Event, error)
}
