package pgdispatch

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/vadimtkacj1/juice-dispatch/internal/models"
)

const notificationColumns = `
  id, order_id, courier_telegram_id, status,
  assigned_at, delivered_at, last_notification_sent_at, last_reminder_at,
  created_at, updated_at`

func scanNotification(row pgx.Row) (*models.OrderNotification, error) {
	var n models.OrderNotification
	err := row.Scan(
		&n.ID, &n.OrderID, &n.CourierTelegramID, &n.Status,
		&n.AssignedAt, &n.DeliveredAt, &n.LastNotificationSentAt, &n.LastReminderAt,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Storage) GetNotification(ctx context.Context, orderID int64) (*models.OrderNotification, error) {
	n, err := scanNotification(s.db.QueryRow(ctx,
		`SELECT`+notificationColumns+` FROM order_telegram_notifications WHERE order_id = $1`,
		orderID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select notification")
	}
	return n, nil
}

// CreateOrGetNotification создаёт строку лениво при первом dispatch; повторный
// вызов возвращает существующую (одна активная нотификация на заказ).
func (s *Storage) CreateOrGetNotification(ctx context.Context, orderID int64) (*models.OrderNotification, error) {
	n, err := scanNotification(s.db.QueryRow(ctx, `
INSERT INTO order_telegram_notifications (order_id, status)
VALUES ($1, $2)
ON CONFLICT (order_id)
DO UPDATE SET updated_at = now()
RETURNING`+notificationColumns, orderID, models.NotificationStatusPending))
	if err != nil {
		return nil, errors.Wrap(err, "upsert notification")
	}
	return n, nil
}

func (s *Storage) TouchNotificationSent(ctx context.Context, orderID int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE order_telegram_notifications
SET last_notification_sent_at = $2, updated_at = now()
WHERE order_id = $1
`, orderID, at.UTC())
	return errors.Wrap(err, "touch notification sent")
}

func (s *Storage) TouchNotificationReminder(ctx context.Context, orderID int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE order_telegram_notifications
SET last_reminder_at = $2, updated_at = now()
WHERE order_id = $1
`, orderID, at.UTC())
	return errors.Wrap(err, "touch notification reminder")
}

// ClaimNotification — условный UPDATE: строка переходит в in_progress только
// из pending, поэтому гонка двух курьеров решается на уровне базы, а не кода.
func (s *Storage) ClaimNotification(ctx context.Context, orderID int64, courierTelegramID string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE order_telegram_notifications
SET courier_telegram_id = $2, status = $3, assigned_at = $4, updated_at = now()
WHERE order_id = $1 AND status = $5
`, orderID, courierTelegramID, models.NotificationStatusInProgress, at.UTC(), models.NotificationStatusPending)
	if err != nil {
		return false, errors.Wrap(err, "claim notification")
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteNotification закрывает нотификацию, только если её держит именно
// этот курьер.
func (s *Storage) CompleteNotification(ctx context.Context, orderID int64, courierTelegramID string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE order_telegram_notifications
SET status = $3, delivered_at = $4, updated_at = now()
WHERE order_id = $1 AND courier_telegram_id = $2 AND status = $5
`, orderID, courierTelegramID, models.NotificationStatusDelivered, at.UTC(), models.NotificationStatusInProgress)
	if err != nil {
		return false, errors.Wrap(err, "complete notification")
	}
	return tag.RowsAffected() == 1, nil
}

// ListOpenNotifications — все нетерминальные строки, для восстановления
// таймеров после рестарта.
func (s *Storage) ListOpenNotifications(ctx context.Context) ([]*models.OrderNotification, error) {
	rows, err := s.db.Query(ctx,
		`SELECT`+notificationColumns+` FROM order_telegram_notifications WHERE status <> $1 ORDER BY id`,
		models.NotificationStatusDelivered)
	if err != nil {
		return nil, errors.Wrap(err, "select open notifications")
	}
	defer rows.Close()

	var out []*models.OrderNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
