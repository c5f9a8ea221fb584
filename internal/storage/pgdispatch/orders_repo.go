package pgdispatch

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/vadimtkacj1/juice-dispatch/internal/models"
)

var ErrOrderNotFound = errors.New("order not found")

func (s *Storage) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var o models.Order
	err := s.db.QueryRow(ctx, `
SELECT
  id, customer_name, customer_phone, customer_email,
  delivery_address, notes, total_amount, status,
  created_at, updated_at
FROM orders
WHERE id = $1
`, orderID).Scan(
		&o.ID, &o.CustomerName, &o.CustomerPhone, &o.CustomerEmail,
		&o.DeliveryAddress, &o.Notes, &o.TotalAmount, &o.Status,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}

	rows, err := s.db.Query(ctx, `
SELECT id, order_id, name, quantity, price
FROM order_items
WHERE order_id = $1
ORDER BY id
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select order items")
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Name, &it.Quantity, &it.Price); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		o.Items = append(o.Items, it)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	return &o, nil
}

func (s *Storage) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		orderID, status)
	return errors.Wrap(err, "update order status")
}

// CreateOrder используется тестами и локальной обкаткой; витрина магазина
// пишет заказы своим путём.
func (s *Storage) CreateOrder(ctx context.Context, o *models.Order) (int64, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `
INSERT INTO orders (customer_name, customer_phone, customer_email, delivery_address, notes, total_amount, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
RETURNING id
`, o.CustomerName, o.CustomerPhone, o.CustomerEmail, o.DeliveryAddress, o.Notes, o.TotalAmount, o.Status, now).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert order")
	}

	for _, it := range o.Items {
		_, err := tx.Exec(ctx, `
INSERT INTO order_items (order_id, name, quantity, price)
VALUES ($1,$2,$3,$4)
`, id, it.Name, it.Quantity, it.Price)
		if err != nil {
			return 0, errors.Wrap(err, "insert order item")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return id, nil
}
