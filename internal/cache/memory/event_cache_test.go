package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
	"github.com/Gunvolt24/amqp_receiver/pkg/metrics"
)

func newEvent(id string) *domain.Event {
	return &domain.Event{ID: id, Queue: "q", Payload: []byte("p-" + id)}
}

// fakeClock — управляемое время для TTL.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestSetGet_HitMiss(t *testing.T) {
	c := NewLRUCacheTTL(2, 5*time.Minute)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "id-1"); ok {
		t.Fatalf("expected miss before Set")
	}
	_ = c.Set(ctx, newEvent("id-1"))
	got, ok := c.Get(ctx, "id-1")
	if !ok || got.ID != "id-1" || string(got.Payload) != "p-id-1" {
		t.Fatalf("expected hit for id-1, got %+v", got)
	}
}

func TestTTL_ExpiryAndSliding(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewLRUCacheTTL(2, time.Minute)
	c.now = clock.now
	ctx := context.Background()

	_ = c.Set(ctx, newEvent("ttl"))
	clock.advance(50 * time.Second)
	if _, ok := c.Get(ctx, "ttl"); !ok {
		t.Fatalf("expected hit before TTL")
	}
	// Get продлил TTL
	clock.advance(50 * time.Second)
	if _, ok := c.Get(ctx, "ttl"); !ok {
		t.Fatalf("expected hit after sliding renewal")
	}
	clock.advance(2 * time.Minute)
	if _, ok := c.Get(ctx, "ttl"); ok {
		t.Fatalf("expected miss after TTL expires")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry must be removed, len=%d", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCacheTTL(2, 0)
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.CacheOps.WithLabelValues("evicted"))

	_ = c.Set(ctx, newEvent("A"))
	_ = c.Set(ctx, newEvent("B"))
	if _, ok := c.Get(ctx, "A"); !ok {
		t.Fatalf("expected hit for A")
	}
	_ = c.Set(ctx, newEvent("C"))

	if _, ok := c.Get(ctx, "B"); ok {
		t.Fatalf("B must be evicted")
	}
	if _, ok := c.Get(ctx, "A"); !ok {
		t.Fatalf("A must survive")
	}
	if got := testutil.ToFloat64(metrics.CacheOps.WithLabelValues("evicted")) - before; got != 1 {
		t.Fatalf("want 1 eviction, got %v", got)
	}
}

func TestSet_PrunesExpiredBeforeEvicting(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewLRUCacheTTL(3, time.Minute)
	c.now = clock.now
	ctx := context.Background()

	_ = c.Set(ctx, newEvent("old-1"))
	_ = c.Set(ctx, newEvent("old-2"))
	clock.advance(2 * time.Minute)
	_ = c.Set(ctx, newEvent("fresh"))

	if c.Len() != 1 {
		t.Fatalf("expired entries must be pruned, len=%d", c.Len())
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	c := NewLRUCacheTTL(2, 0)
	ctx := context.Background()

	src := newEvent("X")
	_ = c.Set(ctx, src)
	src.Payload[0] = 'Z'

	got, _ := c.Get(ctx, "X")
	got.Payload[1] = 'Q'

	again, _ := c.Get(ctx, "X")
	if string(again.Payload) != "p-X" {
		t.Fatalf("cache must store and return copies, got %q", again.Payload)
	}
}

func TestSet_IgnoresEmpty(t *testing.T) {
	c := NewLRUCacheTTL(2, 0)
	ctx := context.Background()
	if err := c.Set(ctx, nil); err != nil {
		t.Fatalf("nil event: %v", err)
	}
	if err := c.Set(ctx, &domain.Event{}); err != nil {
		t.Fatalf("empty id: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("empty events must be ignored")
	}
}

func TestWarmUp_LastIsFreshest(t *testing.T) {
	c := NewLRUCacheTTL(2, 0)
	ctx := context.Background()

	_ = c.WarmUp(ctx, []*domain.Event{newEvent("1"), newEvent("2"), newEvent("3")})
	if _, ok := c.Get(ctx, "1"); ok {
		t.Fatalf("first warmed entry must be evicted by capacity")
	}
	for _, id := range []string{"2", "3"} {
		if _, ok := c.Get(ctx, id); !ok {
			t.Fatalf("expected %s in cache", id)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewLRUCacheTTL(16, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := string(rune('a' + (i+j)%26))
				_ = c.Set(ctx, newEvent(id))
				_, _ = c.Get(ctx, id)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() > 16 {
		t.Fatalf("capacity exceeded: %d", c.Len())
	}
}
