package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
	"github.com/Gunvolt24/amqp_receiver/internal/ports"
	"github.com/Gunvolt24/amqp_receiver/internal/rabbitmq"
	"github.com/Gunvolt24/amqp_receiver/internal/usecase"
	"github.com/Gunvolt24/amqp_receiver/pkg/httpx"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type Handler struct {
	events         ports.EventReadService
	receiver       ports.Receiver
	log            ports.Logger
	requestTimeout time.Duration
}

// NewHandler — events или receiver могут быть nil, соответствующие ручки отвечают 503.
func NewHandler(events ports.EventReadService, receiver ports.Receiver, log ports.Logger, requestTimeout time.Duration) *Handler {
	return &Handler{events: events, receiver: receiver, log: log, requestTimeout: requestTimeout}
}

// NewRouter — serviceName != "" включает otelgin.
func NewRouter(h *Handler, serviceName string) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	if serviceName != "" {
		r.Use(otelgin.Middleware(serviceName))
	}
	r.Use(httpx.RequestIDMiddleware())
	r.Use(httpx.RequestLogger(h.log))

	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/receiver", h.receiverInfo)
	r.POST("/receiver/start", h.startReceiver)
	r.POST("/receiver/stop", h.stopReceiver)

	r.GET("/events", h.listEvents)
	r.GET("/events/:id", h.getEventByID)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	return r
}

func (h *Handler) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.requestTimeout)
}

func (h *Handler) receiverInfo(c *gin.Context) {
	if h.receiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "receiver is not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": h.receiver.DisplayName(), "state": h.receiver.Status()})
}

// startReceiver — запуск на контексте запроса: воркеры от него не зависят.
func (h *Handler) startReceiver(c *gin.Context) {
	if h.receiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "receiver is not configured"})
		return
	}
	ctx := c.Request.Context()
	if err := h.receiver.Start(ctx); err != nil {
		h.log.Errorf(ctx, "receiver start failed err=%v", err)
		c.JSON(receiverErrorStatus(err), gin.H{"error": err.Error(), "state": h.receiver.Status()})
		return
	}
	h.log.Infof(ctx, "receiver started by operator: %s", h.receiver.DisplayName())
	c.JSON(http.StatusOK, gin.H{"state": h.receiver.Status()})
}

// stopReceiver — ErrDrainTimeout не мешает остановке, отдаём 200 с предупреждением.
func (h *Handler) stopReceiver(c *gin.Context) {
	if h.receiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "receiver is not configured"})
		return
	}
	// Разрыв клиента не должен обрывать дренаж: отмену запроса не наследуем.
	ctx := context.WithoutCancel(c.Request.Context())
	err := h.receiver.Stop(ctx)
	switch {
	case err == nil:
		h.log.Infof(ctx, "receiver stopped by operator: %s", h.receiver.DisplayName())
		c.JSON(http.StatusOK, gin.H{"state": h.receiver.Status()})
	case errors.Is(err, rabbitmq.ErrDrainTimeout):
		h.log.Warnf(ctx, "receiver stopped with drain timeout err=%v", err)
		c.JSON(http.StatusOK, gin.H{"state": h.receiver.Status(), "warning": err.Error()})
	default:
		h.log.Errorf(ctx, "receiver stop failed err=%v", err)
		c.JSON(receiverErrorStatus(err), gin.H{"error": err.Error(), "state": h.receiver.Status()})
	}
}

func receiverErrorStatus(err error) int {
	switch {
	case errors.Is(err, rabbitmq.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, rabbitmq.ErrConnection), errors.Is(err, rabbitmq.ErrTopology):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) getEventByID(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": usecase.ErrStorageNotConfigured.Error()})
		return
	}
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty id"})
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	event, err := h.events.GetEvent(ctx, id)
	if err != nil {
		h.log.Errorf(ctx, "GetEvent failed id=%s err=%v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *Handler) listEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": usecase.ErrStorageNotConfigured.Error()})
		return
	}
	page := httpx.ParsePage(c, defaultPageLimit, maxPageLimit)

	ctx, cancel := h.ctx(c)
	defer cancel()

	events, err := h.events.RecentEvents(ctx, page.Limit, page.Offset)
	if errors.Is(err, usecase.ErrStorageNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Errorf(ctx, "RecentEvents failed limit=%d offset=%d err=%v", page.Limit, page.Offset, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if events == nil {
		events = []*domain.Event{}
	}
	c.JSON(http.StatusOK, events)
}
