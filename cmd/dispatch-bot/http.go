package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/vadimtkacj1/juice-dispatch/config"
	"github.com/vadimtkacj1/juice-dispatch/internal/services/dispatch"
)

type dispatcher interface {
	Dispatch(ctx context.Context, orderID int64) (bool, error)
	Stats() dispatch.Stats
}

type pollingReporter interface {
	Polling() bool
}

type serverOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	engine        dispatcher
	bot           pollingReporter
	botConfigured bool
	cfg           *config.Config
}

type notifyOrderRequest struct {
	OrderID int64 `json:"orderId"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newRouter(opts serverOpts) (chi.Router, error) {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		polling := opts.bot != nil && opts.bot.Polling()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"polling":        polling,
			"bot_configured": opts.botConfigured,
		})
	})

	r.Post("/notify-order", func(w http.ResponseWriter, req *http.Request) {
		if opts.engine == nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "dispatch engine not wired"})
			return
		}
		var body notifyOrderRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.OrderID <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "orderId is required"})
			return
		}
		notified, err := opts.engine.Dispatch(req.Context(), body.OrderID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		// success отражает итог рассылки: вебхук оплаты должен видеть,
		// что курьеров никто не получил.
		msg := "no couriers notified"
		if notified {
			msg = "couriers notified"
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": notified, "message": msg})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		if opts.engine == nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "dispatch engine not wired"})
			return
		}
		writeJSON(w, http.StatusOK, opts.engine.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, req *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "config not wired"})
			return
		}
		// Без секретов: только операционные настройки диспетчера.
		writeJSON(w, http.StatusOK, map[string]any{
			"stage1IntervalSeconds":   opts.cfg.Dispatch.Stage1IntervalSeconds,
			"stage1MaxSends":          opts.cfg.Dispatch.Stage1MaxSends,
			"stage2IntervalSeconds":   opts.cfg.Dispatch.Stage2IntervalSeconds,
			"settingsCacheTTLSeconds": opts.cfg.Dispatch.SettingsCacheTTLSeconds,
			"sendRateLimitPerMinute":  opts.cfg.Dispatch.SendRateLimitPerMinute,
			"pollTimeoutSeconds":      opts.cfg.Dispatch.PollTimeoutSeconds,
		})
	})

	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
		}
		r.Get("/swagger.json", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, req, opts.swaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	return r, nil
}

func runHTTPServer(ctx context.Context, opts serverOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8083"
	}

	r, err := newRouter(opts)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}
