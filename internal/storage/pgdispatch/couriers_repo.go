package pgdispatch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadimtkacj1/juice-dispatch/internal/models"
)

// ListActiveCouriers возвращает живой снимок is_active=true. Вызывается перед
// каждой рассылкой, чтобы подключённые позже курьеры попадали в ресенды.
func (s *Storage) ListActiveCouriers(ctx context.Context) ([]*models.Courier, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, telegram_id, name, is_active, created_at
FROM telegram_couriers
WHERE is_active = TRUE
ORDER BY id
`)
	if err != nil {
		return nil, errors.Wrap(err, "select active couriers")
	}
	defer rows.Close()

	var out []*models.Courier
	for rows.Next() {
		var c models.Courier
		if err := rows.Scan(&c.ID, &c.TelegramID, &c.Name, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan courier")
		}
		out = append(out, &c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) UpsertCourier(ctx context.Context, c *models.Courier) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
INSERT INTO telegram_couriers (telegram_id, name, is_active)
VALUES ($1,$2,$3)
ON CONFLICT (telegram_id)
DO UPDATE SET name = EXCLUDED.name, is_active = EXCLUDED.is_active
RETURNING id
`, c.TelegramID, c.Name, c.IsActive).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "upsert courier")
	}
	return id, nil
}
