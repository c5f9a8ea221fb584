package messages

import "time"

// OrderPaid — входящий триггер из платёжного вебхука витрины.
type OrderPaid struct {
	OrderID int64     `json:"order_id"`
	PaidAt  time.Time `json:"paid_at,omitempty"`
}

// Типы событий жизненного цикла нотификации.
const (
	DispatchEventDispatched = "dispatched"
	DispatchEventReminded   = "reminded"
	DispatchEventClaimed    = "claimed"
	DispatchEventDelivered  = "delivered"
	DispatchEventExhausted  = "exhausted"
)

// DispatchEvent уходит в dispatch.events для админки/почтового воркера.
type DispatchEvent struct {
	OrderID int64     `json:"order_id"`
	Type    string    `json:"type"`
	At      time.Time `json:"at"`

	CourierTelegramID string `json:"courier_telegram_id,omitempty"`
	CouriersNotified  int    `json:"couriers_notified,omitempty"`
}
