package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	// Closed lets every request through and counts outcomes.
	Closed State = iota
	// Open rejects requests until the cool-off elapses.
	Open
	// HalfOpen lets a single probe through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// gauge value exported for the state
func (s State) gauge() float64 {
	switch s {
	case Closed, Open, HalfOpen:
		return float64(s)
	default:
		return -1
	}
}

// window counts outcomes while the breaker is closed. Once it holds more
// than twice the minimum it is halved so old outcomes fade out.
type window struct {
	ok, failed int
}

func (w *window) add(success bool) {
	if success {
		w.ok++
	} else {
		w.failed++
	}
}

func (w *window) total() int { return w.ok + w.failed }

func (w *window) failureRatio() float64 {
	if w.total() == 0 {
		return 0
	}
	return float64(w.failed) / float64(w.total())
}

func (w *window) halve() {
	w.ok = (w.ok + 1) / 2
	w.failed = (w.failed + 1) / 2
}

// Breaker is a failure-ratio circuit breaker for one upstream.
type Breaker struct {
	minRequests  int
	failureRatio float64
	openFor      time.Duration

	mu       sync.Mutex
	state    State
	counts   window
	openedAt time.Time
	probing  bool
	upstream string
	logger   *zerolog.Logger
	now      func() time.Time
}

// NewBreaker returns a closed breaker that opens once at least minRequests
// outcomes were seen and the failure share reaches failureRatio. It stays
// open for openFor before admitting a probe.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 {
		failureRatio = 0.5
	}
	failureRatio = min(failureRatio, 1)
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		now:          time.Now,
	}
}

// Allow reports whether a request may proceed. After the cool-off an open
// breaker turns half-open and admits exactly one probe; further calls are
// rejected until that probe is reported.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Report records the outcome of an allowed request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	b.counts.add(success)
	switch {
	case b.counts.total() < b.minRequests:
	case b.counts.failureRatio() >= b.failureRatio:
		b.moveLocked(ctx, Open)
	case b.counts.total() > 2*b.minRequests:
		b.counts.halve()
	}
}

// State returns the current state. An open breaker past its cool-off still
// reports Open until Allow admits the probe.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// WithUpstream names the guarded dependency in metrics and logs.
func (b *Breaker) WithUpstream(name string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upstream = strings.TrimSpace(name)
	b.publishLocked()
	return b
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
	return b
}

// WithLogger sets the fallback logger for transition events. A logger found
// in the request context takes precedence.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = &logger
	return b
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.counts = window{}
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.publishLocked()

	label := b.upstreamLabel()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(label, prev.String(), next.String()).Inc()
	}
	if next == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}

	evt := b.loggerFor(ctx).Warn().
		Str("upstream", label).
		Str("from_state", prev.String()).
		Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishLocked() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.upstreamLabel()).Set(b.state.gauge())
	}
}

func (b *Breaker) upstreamLabel() string {
	if b.upstream == "" {
		return "default"
	}
	return b.upstream
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.logger != nil {
		return b.logger
	}
	nop := zerolog.Nop()
	return &nop
}
