package domain

import "time"

// Delivery — один экземпляр сообщения, полученный от брокера.
// Принадлежит воркеру, который его получил, до подтверждения (ack) или отказа (nack).
type Delivery struct {
	ID          string    // message-id из свойств сообщения или сгенерированный uuid
	Tag         uint64    // delivery tag — идентификатор для ack/nack в рамках канала
	Payload     []byte    // тело сообщения, без заголовков
	ReceivedAt  time.Time // момент получения воркером
	Redelivered bool      // брокер уже доставлял это сообщение ранее
}
