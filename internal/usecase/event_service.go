package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
	"github.com/Gunvolt24/amqp_receiver/internal/ports"
	"github.com/Gunvolt24/amqp_receiver/pkg/ctxmeta"
)

// ErrStorageNotConfigured — чтение истории без подключённого хранилища.
var ErrStorageNotConfigured = errors.New("event storage is not configured")

var (
	_ ports.EventSink        = (*EventService)(nil)
	_ ports.EventReadService = (*EventService)(nil)
)

// Stages — подключаемые этапы конвейера; nil-этап пропускается.
type Stages struct {
	Repo      ports.EventRepository
	Publisher ports.EventPublisher
	Archive   ports.EventArchive
	Cache     ports.EventCache
}

// EventService — приёмник событий (EventSink) и сервис чтения принятых событий.
// Accept вызывается одновременно из всех воркеров приёмника; собственного изменяемого состояния нет.
type EventService struct {
	stages       Stages
	log          ports.Logger
	defaultQueue string
	now          func() time.Time
}

// NewEventService — DI-конструктор; defaultQueue используется, если очередь не пришла в контексте.
func NewEventService(stages Stages, log ports.Logger, defaultQueue string) *EventService {
	return &EventService{
		stages:       stages,
		log:          log,
		defaultQueue: defaultQueue,
		now:          time.Now,
	}
}

// Accept — принять payload: сохранить, переслать, заархивировать, положить в кэш.
// Ошибка любого этапа, кроме кэша, возвращается вызывающему.
// Повторная доставка с тем же id безопасна: сохранение идемпотентно.
func (s *EventService) Accept(ctx context.Context, payload []byte) error {
	ev := s.newEvent(ctx, payload)

	if s.stages.Repo != nil {
		if err := s.stages.Repo.Save(ctx, ev); err != nil {
			return fmt.Errorf("save event %s: %w", ev.ID, err)
		}
	}
	if s.stages.Publisher != nil {
		if err := s.stages.Publisher.Publish(ctx, ev.ID, ev.Payload); err != nil {
			return fmt.Errorf("forward event %s: %w", ev.ID, err)
		}
	}
	if s.stages.Archive != nil {
		if err := s.stages.Archive.Store(ctx, ev); err != nil {
			return fmt.Errorf("archive event %s: %w", ev.ID, err)
		}
	}
	if s.stages.Cache != nil {
		if err := s.stages.Cache.Set(ctx, ev); err != nil {
			s.log.Warnf(ctx, "cache.Set failed event_id=%s err=%v", ev.ID, err)
		}
	}

	s.log.Debugf(ctx, "event accepted id=%s size=%d", ev.ID, len(ev.Payload))
	return nil
}

func (s *EventService) newEvent(ctx context.Context, payload []byte) *domain.Event {
	id, ok := ctxmeta.DeliveryIDFromContext(ctx)
	if !ok {
		id = uuid.NewString()
	}
	queue, ok := ctxmeta.QueueFromContext(ctx)
	if !ok {
		queue = s.defaultQueue
	}
	return &domain.Event{
		ID:         id,
		Queue:      queue,
		Payload:    payload,
		ReceivedAt: s.now().UTC(),
	}
}

// GetEvent — по id: сначала кэш, при промахе хранилище с записью в кэш.
// (nil, nil) — события нет.
func (s *EventService) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	if s.stages.Cache != nil {
		if ev, found := s.stages.Cache.Get(ctx, id); found {
			s.log.Debugf(ctx, "cache hit for event=%s", id)
			return ev, nil
		}
	}
	if s.stages.Repo == nil {
		return nil, nil
	}

	start := time.Now()
	ev, err := s.stages.Repo.GetByID(ctx, id)
	if err != nil {
		s.log.Errorf(ctx, "repo.GetByID failed event_id=%s err=%v", id, err)
		return nil, err
	}
	if ev != nil && s.stages.Cache != nil {
		if err := s.stages.Cache.Set(ctx, ev); err != nil {
			s.log.Warnf(ctx, "cache.Set failed event_id=%s err=%v", id, err)
		}
	}
	s.log.Debugf(ctx, "db fetch event_id=%s took=%s", id, time.Since(start))
	return ev, nil
}

// RecentEvents — страница последних событий из хранилища.
func (s *EventService) RecentEvents(ctx context.Context, limit, offset int) ([]*domain.Event, error) {
	if s.stages.Repo == nil {
		return nil, ErrStorageNotConfigured
	}
	return s.stages.Repo.ListRecent(ctx, limit, offset)
}

// WarmUpCache — прогрев кэша последними n событиями. n <= 0 или отсутствие кэша/хранилища — no-op.
func (s *EventService) WarmUpCache(ctx context.Context, n int) error {
	if n <= 0 || s.stages.Cache == nil || s.stages.Repo == nil {
		return nil
	}

	start := time.Now()
	list, err := s.stages.Repo.LastN(ctx, n)
	if err != nil {
		s.log.Errorf(ctx, "repo.LastN failed n=%d err=%v", n, err)
		return err
	}
	// LastN отдаёт новые первыми, в кэш кладём от старых к новым.
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	if err := s.stages.Cache.WarmUp(ctx, list); err != nil {
		s.log.Warnf(ctx, "cache.WarmUp failed err=%v", err)
	}
	s.log.Infof(ctx, "cache warmed with %d events in %s", len(list), time.Since(start))
	return nil
}
