package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vadimtkacj1/juice-dispatch/internal/cache"
	"github.com/vadimtkacj1/juice-dispatch/internal/models"
)

type SettingsSource interface {
	GetBotSettings(ctx context.Context) (*models.BotSettings, error)
}

const settingsCacheKey = "dispatch:bot_settings"

// CachedSettings — снимок настроек бота с коротким TTL: каждый dispatch и
// каждое напоминание читают настройки, ходить за ними в базу всякий раз
// не обязательно. Кэш best-effort, как в остальном коде.
type CachedSettings struct {
	src   SettingsSource
	cache cache.BytesCache
	ttl   time.Duration
}

var _ SettingsSource = (*CachedSettings)(nil)

func NewCachedSettings(src SettingsSource, c cache.BytesCache, ttl time.Duration) *CachedSettings {
	return &CachedSettings{src: src, cache: c, ttl: ttl}
}

func (c *CachedSettings) GetBotSettings(ctx context.Context) (*models.BotSettings, error) {
	if c.cache != nil && c.ttl > 0 {
		if b, ok, err := c.cache.Get(ctx, settingsCacheKey); err == nil && ok {
			var st models.BotSettings
			if json.Unmarshal(b, &st) == nil {
				return &st, nil
			}
		}
	}

	st, err := c.src.GetBotSettings(ctx)
	if err != nil {
		return nil, err
	}
	if st != nil && c.cache != nil && c.ttl > 0 {
		if b, err := json.Marshal(st); err == nil {
			_ = c.cache.Set(ctx, settingsCacheKey, b, c.ttl)
		}
	}
	return st, nil
}
