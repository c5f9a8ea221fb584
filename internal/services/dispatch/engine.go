package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vadimtkacj1/juice-dispatch/internal/broker/messages"
	"github.com/vadimtkacj1/juice-dispatch/internal/models"
	"github.com/vadimtkacj1/juice-dispatch/internal/transport"
)

type Store interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	ListActiveCouriers(ctx context.Context) ([]*models.Courier, error)
	GetNotification(ctx context.Context, orderID int64) (*models.OrderNotification, error)
	CreateOrGetNotification(ctx context.Context, orderID int64) (*models.OrderNotification, error)
	TouchNotificationSent(ctx context.Context, orderID int64, at time.Time) error
	TouchNotificationReminder(ctx context.Context, orderID int64, at time.Time) error
	ClaimNotification(ctx context.Context, orderID int64, courierTelegramID string, at time.Time) (bool, error)
	CompleteNotification(ctx context.Context, orderID int64, courierTelegramID string, at time.Time) (bool, error)
	ListOpenNotifications(ctx context.Context) ([]*models.OrderNotification, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Engine владеет жизненным циклом нотификации: pending → in_progress →
// delivered. Гонку claim двух курьеров решает условный UPDATE в сторе,
// таймеры стадий живут в TimerRegistry.
type Engine struct {
	store    Store
	sender   transport.Sender
	producer Producer
	rl       RateLimiter
	settings SettingsSource

	timers *TimerRegistry

	topic string

	stage1Interval     time.Duration
	stage1MaxSends     int
	stage2Interval     time.Duration
	sendLimitPerMinute int64

	startedAtUnixNano int64
	dispatches        atomic.Int64
	broadcastsSent    atomic.Int64
	sendFailures      atomic.Int64
	claims            atomic.Int64
	claimConflicts    atomic.Int64
	deliveries        atomic.Int64
	remindersSent     atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(store Store, sender transport.Sender) *Engine {
	return &Engine{
		store:             store,
		sender:            sender,
		timers:            NewTimerRegistry(),
		stage1Interval:    1 * time.Minute,
		stage1MaxSends:    5,
		stage2Interval:    1 * time.Hour,
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (e *Engine) WithProducer(p Producer, topic string) *Engine {
	e.producer = p
	e.topic = topic
	return e
}

func (e *Engine) WithRateLimiter(rl RateLimiter, perMinute int) *Engine {
	e.rl = rl
	if perMinute > 0 {
		e.sendLimitPerMinute = int64(perMinute)
	}
	return e
}

func (e *Engine) WithSettings(src SettingsSource) *Engine {
	e.settings = src
	return e
}

func (e *Engine) WithIntervals(stage1 time.Duration, stage1MaxSends int, stage2 time.Duration) *Engine {
	if stage1 > 0 {
		e.stage1Interval = stage1
	}
	if stage1MaxSends > 0 {
		e.stage1MaxSends = stage1MaxSends
	}
	if stage2 > 0 {
		e.stage2Interval = stage2
	}
	return e
}

// Close снимает все таймеры. Незавершённые нотификации остаются в базе и
// подхватываются Resume при следующем старте.
func (e *Engine) Close() {
	e.timers.CancelAll()
}

// Dispatch рассылает заказ всем активным курьерам и взводит Stage-1 таймер.
// Повторный вызов в pending — идемпотентный ребродкаст, не ошибка.
// true — хотя бы один курьер получил сообщение.
func (e *Engine) Dispatch(ctx context.Context, orderID int64) (bool, error) {
	e.dispatches.Add(1)

	if e.settings != nil {
		st, err := e.settings.GetBotSettings(ctx)
		if err != nil {
			e.noteError(err)
			return false, err
		}
		if st == nil || !st.Enabled {
			slog.Warn("dispatch skipped: bot disabled", "order_id", orderID)
			return false, nil
		}
	}

	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		e.noteError(err)
		return false, err
	}

	n, err := e.store.CreateOrGetNotification(ctx, orderID)
	if err != nil {
		e.noteError(err)
		return false, err
	}
	if n.Status != models.NotificationStatusPending {
		slog.Warn("dispatch skipped: notification not pending",
			"order_id", orderID, "status", n.Status)
		return false, nil
	}

	sent := e.broadcast(ctx, o)
	if sent == 0 {
		return false, nil
	}

	if err := e.store.TouchNotificationSent(ctx, orderID, time.Now().UTC()); err != nil {
		e.noteError(err)
		slog.Error("touch notification sent", "order_id", orderID, "error", err.Error())
	}

	e.publishEvent(ctx, orderID, messages.DispatchEventDispatched, "", sent)
	e.scheduleStage1(orderID)

	slog.Info("order dispatched", "order_id", orderID, "couriers_notified", sent)
	return true, nil
}

// HandleAction — входная точка нажатий кнопок из транспорта.
func (e *Engine) HandleAction(ctx context.Context, callbackID, fromChatID string) {
	kind, orderID, ok := parseCallbackID(callbackID)
	if !ok {
		slog.Warn("unknown callback", "data", callbackID, "chat_id", fromChatID)
		return
	}
	switch kind {
	case actionAccept:
		e.claim(ctx, orderID, fromChatID)
	case actionDelivered:
		e.deliver(ctx, orderID, fromChatID)
	}
}

// Resume — сверка после рестарта: процессные таймеры не переживают рестарт,
// поэтому поднимаем их заново по нетерминальным строкам. Счётчик Stage-1
// рассылок не персистится, pending-заказ получает свежий цикл целиком.
func (e *Engine) Resume(ctx context.Context) error {
	open, err := e.store.ListOpenNotifications(ctx)
	if err != nil {
		return err
	}

	resumed := 0
	for _, n := range open {
		switch n.Status {
		case models.NotificationStatusPending:
			ok, err := e.Dispatch(ctx, n.OrderID)
			if err != nil {
				slog.Error("resume dispatch", "order_id", n.OrderID, "error", err.Error())
				continue
			}
			if ok {
				resumed++
			}
		case models.NotificationStatusInProgress:
			if n.CourierTelegramID == nil {
				continue
			}
			e.scheduleStage2(n.OrderID)
			resumed++
		}
	}

	slog.Info("resume pass completed", "open", len(open), "resumed", resumed)
	return nil
}

func (e *Engine) claim(ctx context.Context, orderID int64, chatID string) {
	ok, err := e.store.ClaimNotification(ctx, orderID, chatID, time.Now().UTC())
	if err != nil {
		// Внутренние ошибки курьеру не показываем, только в лог.
		e.noteError(err)
		slog.Error("claim", "order_id", orderID, "chat_id", chatID, "error", err.Error())
		return
	}
	if !ok {
		e.claimConflicts.Add(1)
		n, err := e.store.GetNotification(ctx, orderID)
		if err == nil && n != nil && n.Status == models.NotificationStatusInProgress {
			e.reply(ctx, chatID, alreadyTakenReply)
		} else {
			e.reply(ctx, chatID, notFoundReply)
		}
		return
	}

	e.claims.Add(1)
	e.timers.Cancel(orderID, StagePending)

	if err := e.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusInProgress); err != nil {
		e.noteError(err)
		slog.Error("update order status", "order_id", orderID, "error", err.Error())
	}

	text := fmt.Sprintf("✅ Order #%d is yours!", orderID)
	if o, err := e.store.GetOrder(ctx, orderID); err == nil {
		text = claimConfirmText(o)
	} else {
		e.noteError(err)
		slog.Error("load order for confirm", "order_id", orderID, "error", err.Error())
	}

	e.throttle(ctx, chatID)
	action := &transport.Action{Label: deliveredLabel, CallbackID: DeliveredCallbackID(orderID)}
	if err := e.sender.SendMessage(ctx, chatID, text, action); err != nil {
		e.sendFailures.Add(1)
		slog.Error("send claim confirm", "order_id", orderID, "chat_id", chatID, "error", err.Error())
	}

	e.publishEvent(ctx, orderID, messages.DispatchEventClaimed, chatID, 0)
	e.scheduleStage2(orderID)

	slog.Info("order claimed", "order_id", orderID, "chat_id", chatID)
}

func (e *Engine) deliver(ctx context.Context, orderID int64, chatID string) {
	ok, err := e.store.CompleteNotification(ctx, orderID, chatID, time.Now().UTC())
	if err != nil {
		e.noteError(err)
		slog.Error("complete", "order_id", orderID, "chat_id", chatID, "error", err.Error())
		return
	}
	if !ok {
		e.reply(ctx, chatID, notFoundReply)
		return
	}

	e.deliveries.Add(1)
	e.timers.Cancel(orderID, StageClaimed)
	e.timers.Cancel(orderID, StagePending)

	if err := e.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusDelivered); err != nil {
		e.noteError(err)
		slog.Error("update order status", "order_id", orderID, "error", err.Error())
	}

	e.reply(ctx, chatID, fmt.Sprintf(deliveredThanksReply, orderID))
	e.publishEvent(ctx, orderID, messages.DispatchEventDelivered, chatID, 0)

	slog.Info("order delivered", "order_id", orderID, "chat_id", chatID)
}

// broadcast шлёт Stage-1 сообщение живому снимку активных курьеров.
// Сбой по одному чату логируется и не прерывает остальных.
func (e *Engine) broadcast(ctx context.Context, o *models.Order) int {
	couriers, err := e.store.ListActiveCouriers(ctx)
	if err != nil {
		e.noteError(err)
		slog.Error("list active couriers", "order_id", o.ID, "error", err.Error())
		return 0
	}
	if len(couriers) == 0 {
		slog.Warn("no active couriers", "order_id", o.ID)
		return 0
	}

	text := stage1Text(o)
	action := &transport.Action{Label: takeOrderLabel, CallbackID: AcceptCallbackID(o.ID)}

	sent := 0
	for _, c := range couriers {
		e.throttle(ctx, c.TelegramID)
		if err := e.sender.SendMessage(ctx, c.TelegramID, text, action); err != nil {
			e.sendFailures.Add(1)
			e.noteError(err)
			slog.Error("send stage1", "order_id", o.ID, "chat_id", c.TelegramID, "error", err.Error())
			continue
		}
		sent++
	}
	e.broadcastsSent.Add(int64(sent))
	return sent
}

func (e *Engine) scheduleStage1(orderID int64) {
	sends := 1 // стартовая рассылка уже ушла
	e.timers.Schedule(orderID, StagePending, e.stage1Interval, func(ctx context.Context) bool {
		n, err := e.store.GetNotification(ctx, orderID)
		if err != nil {
			e.noteError(err)
			slog.Error("stage1 load notification", "order_id", orderID, "error", err.Error())
			return true // разовую ошибку базы переживаем, таймер остаётся
		}
		if n == nil || n.Status != models.NotificationStatusPending {
			return false
		}

		o, err := e.store.GetOrder(ctx, orderID)
		if err != nil {
			e.noteError(err)
			slog.Error("stage1 load order", "order_id", orderID, "error", err.Error())
			return true
		}

		sent := e.broadcast(ctx, o)
		if sent == 0 {
			// Никто не получил сообщение — тик не считается отправкой
			// и не съедает лимит.
			return true
		}
		if err := e.store.TouchNotificationSent(ctx, orderID, time.Now().UTC()); err != nil {
			e.noteError(err)
		}
		e.publishEvent(ctx, orderID, messages.DispatchEventReminded, "", sent)

		sends++
		if sends >= e.stage1MaxSends {
			// Лимит рассылок исчерпан: заказ остаётся pending, но бот о нём
			// больше не напоминает.
			slog.Warn("stage1 exhausted", "order_id", orderID, "sends", sends)
			e.publishEvent(ctx, orderID, messages.DispatchEventExhausted, "", 0)
			return false
		}
		return true
	})
}

func (e *Engine) scheduleStage2(orderID int64) {
	interval := e.stage2Interval
	if e.settings != nil {
		if st, err := e.settings.GetBotSettings(context.Background()); err == nil && st != nil && st.ReminderIntervalMinutes > 0 {
			interval = time.Duration(st.ReminderIntervalMinutes) * time.Minute
		}
	}

	e.timers.Schedule(orderID, StageClaimed, interval, func(ctx context.Context) bool {
		n, err := e.store.GetNotification(ctx, orderID)
		if err != nil {
			e.noteError(err)
			slog.Error("stage2 load notification", "order_id", orderID, "error", err.Error())
			return true
		}
		if n == nil || n.Status != models.NotificationStatusInProgress || n.CourierTelegramID == nil {
			return false
		}

		o, err := e.store.GetOrder(ctx, orderID)
		if err != nil {
			e.noteError(err)
			slog.Error("stage2 load order", "order_id", orderID, "error", err.Error())
			return true
		}

		chatID := *n.CourierTelegramID
		e.throttle(ctx, chatID)
		action := &transport.Action{Label: deliveredLabel, CallbackID: DeliveredCallbackID(orderID)}
		if err := e.sender.SendMessage(ctx, chatID, claimReminderText(o), action); err != nil {
			e.sendFailures.Add(1)
			slog.Error("send stage2 reminder", "order_id", orderID, "chat_id", chatID, "error", err.Error())
			return true
		}

		e.remindersSent.Add(1)
		if err := e.store.TouchNotificationReminder(ctx, orderID, time.Now().UTC()); err != nil {
			e.noteError(err)
		}
		return true
	})
}

func (e *Engine) reply(ctx context.Context, chatID, text string) {
	e.throttle(ctx, chatID)
	if err := e.sender.SendMessage(ctx, chatID, text, nil); err != nil {
		e.sendFailures.Add(1)
		slog.Error("send reply", "chat_id", chatID, "error", err.Error())
	}
}

func (e *Engine) throttle(ctx context.Context, chatID string) {
	if e.rl == nil || e.sendLimitPerMinute <= 0 {
		return
	}
	minuteKey := fmt.Sprintf("rl:tg:%s:%s", chatID, time.Now().UTC().Format("200601021504"))
	allowed, n, err := e.rl.Allow(ctx, minuteKey, e.sendLimitPerMinute, 70*time.Second)
	if err != nil {
		slog.Warn("rate limiter", "error", err.Error())
		return
	}
	if !allowed {
		// Упёрлись в лимит Bot API по чату: притормозим, но сообщение не теряем.
		slog.Warn("send rate limit exceeded", "chat_id", chatID, "count", n)
		time.Sleep(500 * time.Millisecond)
	}
}

func (e *Engine) publishEvent(ctx context.Context, orderID int64, typ, courierChatID string, notified int) {
	if e.producer == nil {
		return
	}
	b, err := json.Marshal(messages.DispatchEvent{
		OrderID:           orderID,
		Type:              typ,
		At:                time.Now().UTC(),
		CourierTelegramID: courierChatID,
		CouriersNotified:  notified,
	})
	if err != nil {
		return
	}
	key := []byte(strconv.FormatInt(orderID, 10))
	if err := e.producer.Publish(ctx, e.topic, key, b); err != nil {
		slog.Warn("publish dispatch event", "order_id", orderID, "type", typ, "error", err.Error())
	}
}

func (e *Engine) noteError(err error) {
	e.lastErrorMu.Lock()
	e.lastError = err.Error()
	e.lastErrorMu.Unlock()
}

type Stats struct {
	StartedAt      time.Time `json:"startedAt"`
	Dispatches     int64     `json:"dispatches"`
	BroadcastsSent int64     `json:"broadcastsSent"`
	SendFailures   int64     `json:"sendFailures"`
	Claims         int64     `json:"claims"`
	ClaimConflicts int64     `json:"claimConflicts"`
	Deliveries     int64     `json:"deliveries"`
	RemindersSent  int64     `json:"remindersSent"`
	ActiveTimers   int       `json:"activeTimers"`
	LastError      string    `json:"lastError,omitempty"`
}

func (e *Engine) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, e.startedAtUnixNano).UTC(),
		Dispatches:     e.dispatches.Load(),
		BroadcastsSent: e.broadcastsSent.Load(),
		SendFailures:   e.sendFailures.Load(),
		Claims:         e.claims.Load(),
		ClaimConflicts: e.claimConflicts.Load(),
		Deliveries:     e.deliveries.Load(),
		RemindersSent:  e.remindersSent.Load(),
		ActiveTimers:   e.timers.Len(),
	}
	e.lastErrorMu.Lock()
	st.LastError = e.lastError
	e.lastErrorMu.Unlock()
	return st
}
