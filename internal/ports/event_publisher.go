package ports

import "context"

// EventPublisher — пересылка сырого payload дальше по конвейеру (Kafka).
type EventPublisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}
