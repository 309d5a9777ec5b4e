package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
	"github.com/Gunvolt24/amqp_receiver/internal/ports"
)

var _ ports.EventRepository = (*EventRepository)(nil)

// EventRepository — хранилище принятых событий на Postgres (pgxpool).
type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository { return &EventRepository{pool: pool} }

// Save — идемпотентная вставка: повторная доставка с тем же id ничего не меняет.
func (r *EventRepository) Save(ctx context.Context, event *domain.Event) error {
	if event == nil || event.ID == "" {
		return errors.New("event is empty or id is required")
	}
	payload := event.Payload
	if payload == nil {
		payload = []byte{}
	}
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, queue, payload, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.Queue, payload, event.ReceivedAt); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID — событие по id; (nil, nil) если не найдено.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	var ev domain.Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, queue, payload, received_at FROM events WHERE id = $1
	`, id).Scan(&ev.ID, &ev.Queue, &ev.Payload, &ev.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select event: %w", err)
	}
	return &ev, nil
}

// ListRecent — страница событий, новые первыми.
func (r *EventRepository) ListRecent(ctx context.Context, limit, offset int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return r.query(ctx, `
		SELECT id, queue, payload, received_at
		FROM events
		ORDER BY received_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

// LastN — последние n событий (прогрев кэша).
func (r *EventRepository) LastN(ctx context.Context, n int) ([]*domain.Event, error) {
	if n <= 0 {
		return nil, nil
	}
	return r.query(ctx, `
		SELECT id, queue, payload, received_at
		FROM events
		ORDER BY received_at DESC, id DESC
		LIMIT $1
	`, n)
}

func (r *EventRepository) query(ctx context.Context, sql string, args ...any) ([]*domain.Event, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Event, error) {
		var ev domain.Event
		if err := row.Scan(&ev.ID, &ev.Queue, &ev.Payload, &ev.ReceivedAt); err != nil {
			return nil, err
		}
		return &ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return events, nil
}
