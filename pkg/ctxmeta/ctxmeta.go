// Пакет ctxmeta — нейтральный слой для работы с метаданными запроса/доставки,
// которые прокидываются через context.Context (request_id, delivery_id, trace_id).
// HTTP-слой, приёмник AMQP и логгер зависят от него, но не друг от друга.
package ctxmeta

import "context"

type ctxKey string

const (
	// Ключи контекста (неэкспортируемый тип — чтобы избежать коллизий).
	KeyRequestID  ctxKey = "request_id"
	KeyDeliveryID ctxKey = "delivery_id"
	KeyQueue      ctxKey = "queue"
)

// WithRequestID кладёт request_id в контекст (если пусто — ничего не делает).
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, KeyRequestID, requestID)
}

// RequestIDFromContext достаёт request_id из контекста.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, KeyRequestID)
}

// WithDeliveryID кладёт идентификатор AMQP-доставки в контекст.
func WithDeliveryID(ctx context.Context, deliveryID string) context.Context {
	return withString(ctx, KeyDeliveryID, deliveryID)
}

// DeliveryIDFromContext достаёт идентификатор доставки из контекста.
func DeliveryIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, KeyDeliveryID)
}

// WithQueue кладёт имя очереди, из которой пришла доставка.
func WithQueue(ctx context.Context, queue string) context.Context {
	return withString(ctx, KeyQueue, queue)
}

// QueueFromContext достаёт имя очереди из контекста.
func QueueFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, KeyQueue)
}

func withString(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil || value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key ctxKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
