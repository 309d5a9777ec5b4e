//go:build !integration

package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
)

// --- Бенчмарки ---

// GetEvent — LEAN vs FULL пайплайн
func BenchmarkHTTP_GetEvent(b *testing.B) {
	ev := benchEvent("bench-1", 256)
	h := NewHandler(svcOne{e: ev}, nil, nopLogger{}, 2*time.Second)

	lean := makeLeanRouter(h)
	full := makeFullRouter(h)

	b.Run("lean/no-mw", func(b *testing.B) {
		benchServeGET(b, lean, "/events/"+ev.ID)
	})
	b.Run("full/prod-mw", func(b *testing.B) {
		benchServeGET(b, full, "/events/"+ev.ID)
	})
}

// Потолок без маршалинга: то же событие, заранее закодированное.
func BenchmarkHTTP_GetEvent_PreMarshaledBytes(b *testing.B) {
	ev := benchEvent("bench-1", 256)
	raw, _ := json.Marshal(ev)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/events/:id", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", raw)
	})

	benchServeGET(b, r, "/events/"+ev.ID)
}

// Пагинация: 10/50/100
func BenchmarkHTTP_ListEvents(b *testing.B) {
	for _, n := range []int{10, 50, 100} {
		b.Run("N="+strconv.Itoa(n), func(b *testing.B) {
			list := make([]*domain.Event, 0, n)
			for i := 0; i < n; i++ {
				list = append(list, benchEvent("bench-"+strconv.Itoa(i), 128))
			}
			h := NewHandler(svcList{list: list}, nil, nopLogger{}, 2*time.Second)

			benchServeGET(b, makeLeanRouter(h), "/events?limit="+strconv.Itoa(n))
		})
	}
}

// 404 — цена роутера и NoRoute
func BenchmarkHTTP_404(b *testing.B) {
	h := NewHandler(svcOne{e: benchEvent("x", 1)}, nil, nopLogger{}, 2*time.Second)
	r := makeFullRouter(h)

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			req, _ := http.NewRequest(http.MethodGet, "/nope", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			_, _ = io.Copy(io.Discard, w.Body)
			if w.Code != http.StatusNotFound {
				b.Fatalf("status=%d", w.Code)
			}
		}
	})
}

type nopLogger struct{}

func (nopLogger) Debugf(context.Context, string, ...any) {}
func (nopLogger) Infof(context.Context, string, ...any)  {}
func (nopLogger) Warnf(context.Context, string, ...any)  {}
func (nopLogger) Errorf(context.Context, string, ...any) {}

// --- Стабы ---

type svcOne struct{ e *domain.Event }

func (s svcOne) GetEvent(context.Context, string) (*domain.Event, error) { return s.e, nil }
func (s svcOne) RecentEvents(context.Context, int, int) ([]*domain.Event, error) {
	return []*domain.Event{s.e}, nil
}

type svcList struct{ list []*domain.Event }

func (s svcList) GetEvent(context.Context, string) (*domain.Event, error) { return s.list[0], nil }
func (s svcList) RecentEvents(context.Context, int, int) ([]*domain.Event, error) {
	return s.list, nil
}

// --- функции-помощники ---

func benchEvent(id string, size int) *domain.Event {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}
	return &domain.Event{ID: id, Queue: "bench.in", Payload: payload, ReceivedAt: time.Now().UTC()}
}

func makeLeanRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New() // без Recovery/otel/logger
	r.GET("/events/:id", h.getEventByID)
	r.GET("/events", h.listEvents)
	return r
}

func makeFullRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	return NewRouter(h, "")
}

func benchServeGET(b *testing.B, r *gin.Engine, path string) {
	b.Helper()
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			req, _ := http.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			_, _ = io.Copy(io.Discard, w.Body)
			if w.Code != http.StatusOK {
				b.Fatalf("status=%d", w.Code)
			}
		}
	})
}
