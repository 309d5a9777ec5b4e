//go:build integration

package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
)

// UniqSuffix — короткий случайный суффикс для имён очередей, топиков и id.
func UniqSuffix() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// MakeEvent — событие с уникальным id; опции меняют поля.
func MakeEvent(opts ...func(*domain.Event)) *domain.Event {
	ev := &domain.Event{
		ID:         "evt-" + UniqSuffix(),
		Queue:      "itest.in",
		Payload:    []byte(`{"device":"d-1","value":42}`),
		ReceivedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}
