package models

import "time"

// Статусы заказа (владеет ими магазин, мы переводим только в in_progress/delivered).
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusPaid       = "paid"
	OrderStatusInProgress = "in_progress"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Статусы нотификации курьерам.
const (
	NotificationStatusPending    = "pending"
	NotificationStatusInProgress = "in_progress"
	NotificationStatusDelivered  = "delivered"
)

type Order struct {
	ID              int64
	CustomerName    string
	CustomerPhone   *string
	CustomerEmail   *string
	DeliveryAddress *string
	Notes           *string
	TotalAmount     float64
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Items []OrderItem
}

type OrderItem struct {
	ID       int64
	OrderID  int64
	Name     string
	Quantity int32
	Price    float64
}

type Courier struct {
	ID         int64
	TelegramID string
	Name       string
	IsActive   bool
	CreatedAt  time.Time
}

// OrderNotification — одна строка на заказ, хранит состояние диспетчеризации.
type OrderNotification struct {
	ID                     int64
	OrderID                int64
	CourierTelegramID      *string
	Status                 string
	AssignedAt             *time.Time
	DeliveredAt            *time.Time
	LastNotificationSentAt *time.Time
	LastReminderAt         *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type BotSettings struct {
	ID                      int64
	Token                   string
	Enabled                 bool
	ReminderIntervalMinutes int32
	UpdatedAt               time.Time
}
