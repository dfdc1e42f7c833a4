package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with retry, timeout and circuit-breaker logic.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	// Upstream labels attempt metrics; defaults to the breaker's name.
	Upstream string
}

// Do executes the request applying retry semantics. Transport errors and 5xx
// responses are retried up to MaxAttempts; the last 5xx response is returned
// to the caller unconsumed so it can inspect the status. When the breaker is
// open ErrOpenCircuit is returned.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		breaker = NewBreaker(1, 1, time.Second)
	}
	maxAttempts := cl.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	baseBackoff := cl.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 100 * time.Millisecond
	}

	body, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !breaker.Allow(ctx) {
			cl.countAttempt(breaker, "rejected")
			if lastErr != nil {
				return nil, fmt.Errorf("%w (last error: %v)", ErrOpenCircuit, lastErr)
			}
			return nil, ErrOpenCircuit
		}
		resp, err := cl.doOnce(ctx, cloneRequest(ctx, req, body))
		switch {
		case err == nil && resp.StatusCode < http.StatusInternalServerError:
			breaker.Report(ctx, true)
			cl.countAttempt(breaker, "ok")
			return resp, nil
		case err == nil:
			breaker.Report(ctx, false)
			cl.countAttempt(breaker, "server_error")
			if attempt == maxAttempts {
				return resp, nil
			}
			drainAndClose(resp)
			lastErr = fmt.Errorf("upstream responded %s", resp.Status)
		default:
			breaker.Report(ctx, false)
			cl.countAttempt(breaker, "transport_error")
			lastErr = err
			if ctx.Err() != nil || attempt == maxAttempts {
				return nil, err
			}
		}

		timer := time.NewTimer(Backoff(baseBackoff, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// doOnce bounds a single attempt by Timeout. The timeout context is released
// when the response body is closed so callers can still read it.
func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		return cl.Client.Do(req.WithContext(ctx))
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (cl HTTPClient) countAttempt(b *Breaker, outcome string) {
	if RetryAttempts == nil {
		return
	}
	label := cl.Upstream
	if label == "" {
		label = b.upstreamLabel()
	}
	RetryAttempts.WithLabelValues(label, outcome).Inc()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func replayableBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()
	return data, nil
}

func cloneRequest(ctx context.Context, req *http.Request, body []byte) *http.Request {
	clone := req.Clone(ctx)
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return clone
}
