package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/vadimtkacj1/juice-dispatch/config"
	"github.com/vadimtkacj1/juice-dispatch/internal/broker/kafka"
	"github.com/vadimtkacj1/juice-dispatch/internal/broker/messages"
	"github.com/vadimtkacj1/juice-dispatch/internal/cache"
	"github.com/vadimtkacj1/juice-dispatch/internal/cache/rediscache"
	"github.com/vadimtkacj1/juice-dispatch/internal/models"
	"github.com/vadimtkacj1/juice-dispatch/internal/services/dispatch"
	"github.com/vadimtkacj1/juice-dispatch/internal/storage/pgdispatch"
	"github.com/vadimtkacj1/juice-dispatch/internal/transport"
	"github.com/vadimtkacj1/juice-dispatch/internal/transport/telegram"
)

// botStorage — всё, что движку и запуску нужно от базы.
type botStorage interface {
	dispatch.Store
	GetBotSettings(ctx context.Context) (*models.BotSettings, error)
}

// courierBot — поверхность telegram-адаптера, которой пользуется процесс.
type courierBot interface {
	transport.Sender
	Run(ctx context.Context, onAction transport.ActionHandler) error
	Polling() bool
	Self() string
}

type eventsConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

type appFactories struct {
	newStorage     func(cfg *config.Config) (botStorage, func(), error)
	newProducer    func(cfg *config.Config) dispatch.Producer
	newConsumer    func(cfg *config.Config) eventsConsumer
	newRateLimiter func(cfg *config.Config) dispatch.RateLimiter
	newCache       func(cfg *config.Config) cache.BytesCache
	newBot         func(token string, cfg *config.Config) (courierBot, error)
}

func defaultAppFactories() appFactories {
	return appFactories{
		newStorage: func(cfg *config.Config) (botStorage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgdispatch.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) dispatch.Producer {
			if cfg.Kafka.DispatchEventsTopicName == "" {
				return nil
			}
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newConsumer: func(cfg *config.Config) eventsConsumer {
			if cfg.Kafka.OrdersPaidTopicName == "" {
				return nil
			}
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, cfg.Kafka.OrdersPaidTopicName, cfg.Kafka.ConsumerGroup)
		},
		newRateLimiter: func(cfg *config.Config) dispatch.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
		newBot: func(token string, cfg *config.Config) (courierBot, error) {
			b, err := telegram.New(token)
			if err != nil {
				return nil, err
			}
			return b.WithPollTimeout(cfg.Dispatch.PollTimeoutSeconds), nil
		},
	}
}

// noSender подставляется, когда бот не сконфигурирован: движок жив, но любая
// отправка честно падает и попадает в лог/ответ триггера.
type noSender struct{}

func (noSender) SendMessage(ctx context.Context, chatID, text string, action *transport.Action) error {
	return errors.New("telegram bot is not configured")
}

func RunDispatchBot(ctx context.Context, cfg *config.Config, f appFactories) error {
	stage1 := time.Duration(cfg.Dispatch.Stage1IntervalSeconds) * time.Second
	stage2 := time.Duration(cfg.Dispatch.Stage2IntervalSeconds) * time.Second
	settingsTTL := time.Duration(cfg.Dispatch.SettingsCacheTTLSeconds) * time.Second
	if settingsTTL <= 0 {
		settingsTTL = 30 * time.Second
	}

	store, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	settings := dispatch.NewCachedSettings(store, f.newCache(cfg), settingsTTL)

	// Токен живёт в telegram_bot_settings (правится из админки);
	// TELEGRAM_BOT_TOKEN — запасной вариант для локальной обкатки.
	token := ""
	if st, err := store.GetBotSettings(ctx); err != nil {
		slog.Error("load bot settings", "error", err.Error())
	} else if st != nil && st.Enabled {
		token = st.Token
	}
	if token == "" {
		token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}

	var bot courierBot
	if token != "" {
		bot, err = f.newBot(token, cfg)
		if err != nil {
			// Не роняем процесс: HTTP-поверхность и /health должны жить,
			// чтобы было видно, что бот не поднялся.
			slog.Error("telegram bot init failed", "error", err.Error())
			bot = nil
		}
	} else {
		slog.Warn("no bot token configured, dispatch disabled")
	}

	var sender transport.Sender = noSender{}
	if bot != nil {
		sender = bot
		slog.Info("telegram bot authorized", "username", bot.Self())
	}

	engine := dispatch.New(store, sender).
		WithSettings(settings).
		WithRateLimiter(f.newRateLimiter(cfg), cfg.Dispatch.SendRateLimitPerMinute).
		WithIntervals(stage1, cfg.Dispatch.Stage1MaxSends, stage2)
	if p := f.newProducer(cfg); p != nil {
		engine = engine.WithProducer(p, cfg.Kafka.DispatchEventsTopicName)
	}
	defer engine.Close()

	if bot != nil {
		go func() {
			if err := bot.Run(ctx, engine.HandleAction); err != nil && err != context.Canceled {
				slog.Error("telegram polling stopped", "error", err.Error())
			}
		}()
	}

	if c := f.newConsumer(cfg); c != nil {
		go func() {
			defer func() { _ = c.Close() }()
			if err := c.Consume(ctx, orderPaidHandler(ctx, engine)); err != nil && ctx.Err() == nil {
				slog.Error("orders.paid consumer stopped", "error", err.Error())
			}
		}()
	}

	if err := engine.Resume(ctx); err != nil {
		slog.Error("resume open notifications", "error", err.Error())
	}

	err = runHTTPServer(ctx, serverOpts{
		httpAddr:      cfg.Dispatch.HTTPAddr,
		swaggerPath:   cfg.Dispatch.SwaggerPath,
		engine:        engine,
		bot:           bot,
		botConfigured: bot != nil,
		cfg:           cfg,
	})
	if err == http.ErrServerClosed && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func orderPaidHandler(ctx context.Context, engine *dispatch.Engine) func(key, value []byte) error {
	return func(key, value []byte) error {
		var ev messages.OrderPaid
		if err := json.Unmarshal(value, &ev); err != nil || ev.OrderID <= 0 {
			// Ядовитое сообщение коммитим и идём дальше, иначе застрянем на нём.
			slog.Warn("bad orders.paid message", "value", string(value))
			return nil
		}
		if _, err := engine.Dispatch(ctx, ev.OrderID); err != nil {
			slog.Error("dispatch from orders.paid", "order_id", ev.OrderID, "error", err.Error())
		}
		return nil
	}
}
