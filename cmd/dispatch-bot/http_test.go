package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vadimtkacj1/juice-dispatch/config"
	"github.com/vadimtkacj1/juice-dispatch/internal/services/dispatch"
)

type fakeDispatcher struct {
	notified    bool
	err         error
	lastOrderID int64
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, orderID int64) (bool, error) {
	d.lastOrderID = orderID
	return d.notified, d.err
}

func (d *fakeDispatcher) Stats() dispatch.Stats { return dispatch.Stats{Dispatches: 7} }

type fakePolling struct{ polling bool }

func (p fakePolling) Polling() bool { return p.polling }

func doRequest(t *testing.T, opts serverOpts, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r, err := newRouter(opts)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestNotifyOrder_CouriersNotified(t *testing.T) {
	d := &fakeDispatcher{notified: true}
	rec, out := doRequest(t, serverOpts{engine: d}, http.MethodPost, "/notify-order", `{"orderId":15}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["success"])
	require.Equal(t, "couriers notified", out["message"])
	require.Equal(t, int64(15), d.lastOrderID)
}

func TestNotifyOrder_NoCouriers(t *testing.T) {
	d := &fakeDispatcher{notified: false}
	rec, out := doRequest(t, serverOpts{engine: d}, http.MethodPost, "/notify-order", `{"orderId":15}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, out["success"])
	require.Equal(t, "no couriers notified", out["message"])
}

func TestNotifyOrder_BadRequest(t *testing.T) {
	d := &fakeDispatcher{}
	for _, body := range []string{``, `{}`, `{"orderId":0}`, `{"orderId":-1}`, `not json`} {
		rec, out := doRequest(t, serverOpts{engine: d}, http.MethodPost, "/notify-order", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body=%q", body)
		require.Equal(t, "orderId is required", out["error"])
	}
	require.Zero(t, d.lastOrderID)
}

func TestNotifyOrder_DispatchError(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("db down")}
	rec, out := doRequest(t, serverOpts{engine: d}, http.MethodPost, "/notify-order", `{"orderId":3}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "db down", out["error"])
}

func TestHealth(t *testing.T) {
	rec, out := doRequest(t, serverOpts{bot: fakePolling{polling: true}, botConfigured: true}, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", out["status"])
	require.Equal(t, true, out["polling"])
	require.Equal(t, true, out["bot_configured"])

	rec, out = doRequest(t, serverOpts{}, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, out["polling"])
	require.Equal(t, false, out["bot_configured"])
}

func TestStats(t *testing.T) {
	rec, out := doRequest(t, serverOpts{engine: &fakeDispatcher{}}, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(7), out["dispatches"])
}

func TestConfig_NoSecrets(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Password: "s3cret"},
		Dispatch: config.DispatchConfig{Stage1IntervalSeconds: 60, Stage1MaxSends: 5},
	}
	rec, out := doRequest(t, serverOpts{cfg: cfg}, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(60), out["stage1IntervalSeconds"])
	require.Equal(t, float64(5), out["stage1MaxSends"])
	require.NotContains(t, rec.Body.String(), "s3cret")
}

func TestNewRouter_MissingSwaggerFile(t *testing.T) {
	_, err := newRouter(serverOpts{swaggerPath: "/nonexistent/swagger.json"})
	require.Error(t, err)
}
