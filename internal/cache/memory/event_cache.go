package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
	"github.com/Gunvolt24/amqp_receiver/internal/ports"
	"github.com/Gunvolt24/amqp_receiver/pkg/metrics"
)

var _ ports.EventCache = (*LRUCacheTTL)(nil)

type entry struct {
	id        string
	event     *domain.Event
	expiresAt time.Time
}

// LRUCacheTTL — LRU-кэш событий с опциональным TTL (ttl <= 0 — без истечения).
// Get продлевает TTL записи (sliding expiration). Наружу отдаются только копии.
type LRUCacheTTL struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	ll    *list.List
	index map[string]*list.Element
}

func NewLRUCacheTTL(capacity int, ttl time.Duration) *LRUCacheTTL {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUCacheTTL{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		ll:       list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

func (c *LRUCacheTTL) Get(_ context.Context, id string) (*domain.Event, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[id]
	if !ok {
		metrics.CacheOps.WithLabelValues("miss").Inc()
		return nil, false
	}
	ent := elem.Value.(*entry)
	if c.expired(ent, now) {
		c.remove(elem)
		metrics.CacheOps.WithLabelValues("expired").Inc()
		return nil, false
	}

	c.ll.MoveToFront(elem)
	ent.expiresAt = c.expiryFrom(now)
	metrics.CacheOps.WithLabelValues("hit").Inc()
	return ent.event.Clone(), true
}

func (c *LRUCacheTTL) Set(_ context.Context, event *domain.Event) error {
	if event == nil || event.ID == "" {
		return nil
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[event.ID]; ok {
		ent := elem.Value.(*entry)
		ent.event = event.Clone()
		ent.expiresAt = c.expiryFrom(now)
		c.ll.MoveToFront(elem)
		return nil
	}

	c.pruneExpired(now)
	c.index[event.ID] = c.ll.PushFront(&entry{
		id:        event.ID,
		event:     event.Clone(),
		expiresAt: c.expiryFrom(now),
	})
	if c.ll.Len() > c.capacity {
		c.remove(c.ll.Back())
		metrics.CacheOps.WithLabelValues("evicted").Inc()
	}
	metrics.CacheSize.Set(float64(c.ll.Len()))
	return nil
}

// WarmUp — загрузка пачки событий; последние в срезе становятся самыми свежими.
func (c *LRUCacheTTL) WarmUp(ctx context.Context, events []*domain.Event) error {
	for _, ev := range events {
		if err := c.Set(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Len — текущее число записей (включая ещё не вычищенные просроченные).
func (c *LRUCacheTTL) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRUCacheTTL) remove(elem *list.Element) {
	if elem == nil {
		return
	}
	delete(c.index, elem.Value.(*entry).id)
	c.ll.Remove(elem)
	metrics.CacheSize.Set(float64(c.ll.Len()))
}

func (c *LRUCacheTTL) expired(ent *entry, now time.Time) bool {
	return c.ttl > 0 && now.After(ent.expiresAt)
}

func (c *LRUCacheTTL) expiryFrom(now time.Time) time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(c.ttl)
}

// pruneExpired — снимает просроченные записи с хвоста до первой актуальной.
func (c *LRUCacheTTL) pruneExpired(now time.Time) {
	for back := c.ll.Back(); back != nil && c.expired(back.Value.(*entry), now); back = c.ll.Back() {
		c.remove(back)
		metrics.CacheOps.WithLabelValues("expired").Inc()
	}
}
