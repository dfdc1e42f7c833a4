package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/skip-hire/internal/obs"
	"github.com/noah-isme/skip-hire/internal/pipeline"
)

// ErrNotFound is returned for unknown or evicted session ids.
var ErrNotFound = errors.New("session: not found")

// RegistryConfig wires a Registry.
type RegistryConfig struct {
	// NewPipeline builds the pipeline backing a new session.
	NewPipeline func() (*pipeline.Pipeline, error)
	IdleTTL     time.Duration
	Logger      *zerolog.Logger
	Now         func() time.Time
}

type entry struct {
	pipeline *pipeline.Pipeline
	lastSeen time.Time
}

// Registry maps session ids to their pipelines. Sessions idle for longer
// than IdleTTL are dropped by Sweep.
type Registry struct {
	newPipeline func() (*pipeline.Pipeline, error)
	idleTTL     time.Duration
	logger      zerolog.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry validates cfg and returns an empty registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.NewPipeline == nil {
		return nil, errors.New("session: pipeline factory is required")
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		newPipeline: cfg.NewPipeline,
		idleTTL:     ttl,
		logger:      logger,
		now:         now,
		sessions:    make(map[string]*entry),
	}, nil
}

// Create registers a new session and returns its id and pipeline.
func (r *Registry) Create() (string, *pipeline.Pipeline, error) {
	p, err := r.newPipeline()
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()

	r.mu.Lock()
	r.sessions[id] = &entry{pipeline: p, lastSeen: r.now()}
	n := len(r.sessions)
	r.mu.Unlock()

	obs.SetActiveSessions(n)
	return id, p, nil
}

// Get returns the pipeline for id and refreshes its idle timer.
func (r *Registry) Get(id string) (*pipeline.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastSeen = r.now()
	return e.pipeline, nil
}

// Delete drops a session and cancels its in-flight fetch.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	e.pipeline.Close()
	obs.SetActiveSessions(n)
	return nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for at least IdleTTL and returns how many.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []*pipeline.Pipeline
	for id, e := range r.sessions {
		if !e.lastSeen.After(cutoff) {
			evicted = append(evicted, e.pipeline)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, p := range evicted {
		p.Close()
	}
	if len(evicted) > 0 {
		obs.SetActiveSessions(n)
		obs.AddSessionsEvicted(len(evicted))
		r.logger.Info().Int("evicted", len(evicted)).Int("active", n).Msg("sessions_evicted")
	}
	return len(evicted)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
