package domain

import "time"

// Event — полезная нагрузка, принятая из очереди и переданная в конвейер обработки.
// Payload не интерпретируется: сохраняется и пересылается байт в байт.
type Event struct {
	ID         string    `json:"id"`
	Queue      string    `json:"queue"`
	Payload    []byte    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// Clone — глубокая копия события (payload копируется).
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cloned := *e
	if e.Payload != nil {
		cloned.Payload = append([]byte(nil), e.Payload...)
	}
	return &cloned
}
