package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	_, client := newMiniredisClient(t)

	backends := map[string]Limiter{
		"redis":  RedisSliding{Client: client, Prefix: "ratelimit:"},
		"memory": NewMemory("ratelimit-test"),
	}
	for name, lim := range backends {
		t.Run(name, func(t *testing.T) {
			handler := Handler{
				Limiter: lim,
				Config: Config{
					Name:   "retry",
					Key:    func(r *http.Request) string { return "retry:" + r.URL.Query().Get("session") },
					Window: time.Minute,
					Max:    1,
				},
			}
			limited := handler.Middleware(okHandler())

			rr1 := httptest.NewRecorder()
			limited.ServeHTTP(rr1, httptest.NewRequest(http.MethodPost, "/retry?session=a", nil))
			require.Equal(t, http.StatusOK, rr1.Code)
			require.Equal(t, "1", rr1.Header().Get("X-RateLimit-Limit"))
			require.Equal(t, "0", rr1.Header().Get("X-RateLimit-Remaining"))

			rr2 := httptest.NewRecorder()
			limited.ServeHTTP(rr2, httptest.NewRequest(http.MethodPost, "/retry?session=a", nil))
			require.Equal(t, http.StatusTooManyRequests, rr2.Code)
			require.NotEmpty(t, rr2.Header().Get("Retry-After"))

			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &body))
			require.Equal(t, "RATE_LIMITED", body.Error.Code)

			rr3 := httptest.NewRecorder()
			limited.ServeHTTP(rr3, httptest.NewRequest(http.MethodPost, "/retry?session=b", nil))
			require.Equal(t, http.StatusOK, rr3.Code, "other keys have their own budget")
		})
	}
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	called := false
	handler := Handler{
		Limiter: RedisSliding{Client: client, Prefix: "ratelimit:"},
		Config: Config{
			Key:    func(*http.Request) string { return "err" },
			Window: time.Second,
			Max:    1,
		},
		OnError: func(error) { called = true },
	}

	rr := httptest.NewRecorder()
	handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusOK, rr.Code, "limiter failures fail open")
	require.True(t, called)
}

func TestHandlerMiddlewareWithoutLimiter(t *testing.T) {
	rr := httptest.NewRecorder()
	Handler{}.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
}
