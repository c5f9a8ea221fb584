package pgdispatch

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/vadimtkacj1/juice-dispatch/internal/models"
)

// GetBotSettings возвращает nil, если бот не настроен в админке.
func (s *Storage) GetBotSettings(ctx context.Context) (*models.BotSettings, error) {
	var st models.BotSettings
	err := s.db.QueryRow(ctx, `
SELECT id, bot_token, enabled, reminder_interval_minutes, updated_at
FROM telegram_bot_settings
ORDER BY id DESC
LIMIT 1
`).Scan(&st.ID, &st.Token, &st.Enabled, &st.ReminderIntervalMinutes, &st.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select bot settings")
	}
	return &st, nil
}

func (s *Storage) SaveBotSettings(ctx context.Context, st *models.BotSettings) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO telegram_bot_settings (bot_token, enabled, reminder_interval_minutes, updated_at)
VALUES ($1,$2,$3,now())
`, st.Token, st.Enabled, st.ReminderIntervalMinutes)
	return errors.Wrap(err, "insert bot settings")
}
