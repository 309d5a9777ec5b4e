package ports

import (
	"context"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
)

type EventRepository interface {
	Save(ctx context.Context, event *domain.Event) error
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*domain.Event, error)
	LastN(ctx context.Context, n int) ([]*domain.Event, error)
}
