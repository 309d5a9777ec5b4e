package ctxmeta

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceIDFromContext — trace_id активного спана (для логов).
// Без спана или при no-op провайдере возвращает "", false.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", false
	}
	return sc.TraceID().String(), true
}

// SpanIDFromContext — span_id активного спана.
func SpanIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", false
	}
	return sc.SpanID().String(), true
}

// Fields — пары ключ/значение всех известных метаданных контекста.
// Используется логгером для обогащения записей.
func Fields(ctx context.Context) []any {
	var fields []any
	if v, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, string(KeyRequestID), v)
	}
	if v, ok := DeliveryIDFromContext(ctx); ok {
		fields = append(fields, string(KeyDeliveryID), v)
	}
	if v, ok := QueueFromContext(ctx); ok {
		fields = append(fields, string(KeyQueue), v)
	}
	if v, ok := TraceIDFromContext(ctx); ok {
		fields = append(fields, "trace_id", v)
	}
	if v, ok := SpanIDFromContext(ctx); ok {
		fields = append(fields, "span_id", v)
	}
	return fields
}
