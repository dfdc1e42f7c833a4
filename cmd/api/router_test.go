package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skip-hire/internal/app"
	"github.com/noah-isme/skip-hire/internal/config"
	"github.com/noah-isme/skip-hire/internal/obs"
	"github.com/noah-isme/skip-hire/internal/session"
)

const skipsJSON = `[
	{"id":17933,"size":4,"hire_period_days":14,"price_before_vat":278,"vat":20,"transport_cost":null,"allowed_on_road":true,"allows_heavy_waste":false,"area":"","postcode":"NR32"},
	{"id":17934,"size":6,"hire_period_days":14,"price_before_vat":305,"vat":20,"allowed_on_road":true,"allows_heavy_waste":true,"postcode":"NR32"}
]`

func newTestRouter(t *testing.T, env map[string]string) http.Handler {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(skipsJSON))
	}))
	t.Cleanup(upstream.Close)

	if env == nil {
		env = map[string]string{}
	}
	env["SKIPS_API_URL"] = upstream.URL
	env["REDIS_URL"] = ""
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)

	logger := zerolog.Nop()
	deps, err := app.New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	registry, err := session.NewRegistry(session.RegistryConfig{NewPipeline: deps.NewPipeline, Logger: &logger})
	require.NoError(t, err)

	router, err := newRouter(routerConfig{
		Config:   cfg,
		Deps:     deps,
		Registry: registry,
		Logger:   logger,
		Metrics:  obs.NewHTTPMetrics("router_test", nil, prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return router
}

func TestRouterCreateSessionEndToEnd(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	var body struct {
		Data struct {
			SessionID string `json:"sessionId"`
			View      struct {
				Offers []struct {
					ID int64 `json:"id"`
				} `json:"offers"`
				SelectedID *int64 `json:"selectedId"`
				Checkout   struct {
					TotalLabel string `json:"totalLabel"`
				} `json:"checkout"`
			} `json:"view"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.SessionID)
	require.Len(t, body.Data.View.Offers, 2)
	require.Equal(t, int64(17933), *body.Data.View.SelectedID)
	require.Equal(t, "£333.60 inc. VAT", body.Data.View.Checkout.TotalLabel)

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/"+body.Data.SessionID+"/sort", strings.NewReader(`{"order":"desc"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"sortOrder":"desc"`)
}

func TestRouterRetryRateLimit(t *testing.T) {
	router := newTestRouter(t, map[string]string{"RETRY_RATE_LIMIT_MAX": "1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		Data struct {
			SessionID string `json:"sessionId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	path := "/api/v1/sessions/" + created.Data.SessionID + "/retry"

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"redis":"disabled"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t, map[string]string{"CORS_ALLOWED_ORIGINS": "https://skips.example"})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "https://skips.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, "https://skips.example", rr.Header().Get("Access-Control-Allow-Origin"))
}
