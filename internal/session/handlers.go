package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/skip-hire/internal/common"
	"github.com/noah-isme/skip-hire/internal/offer"
	"github.com/noah-isme/skip-hire/internal/pipeline"
)

// Handler exposes the selection pipeline over HTTP, one pipeline per session.
type Handler struct {
	registry     *Registry
	validator    *common.Validator
	fetchTimeout time.Duration
	retryLimit   func(http.Handler) http.Handler
	createLimit  func(http.Handler) http.Handler
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Registry *Registry
	// FetchTimeout bounds fetches triggered by requests. Fetches outlive a
	// disconnected client so the session still ends in a settled state.
	FetchTimeout time.Duration
	// RetryLimit and CreateLimit are optional rate limit middlewares.
	RetryLimit  func(http.Handler) http.Handler
	CreateLimit func(http.Handler) http.Handler
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Registry == nil {
		return nil, errors.New("session: registry is required")
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		registry:     cfg.Registry,
		validator:    common.NewValidator(),
		fetchTimeout: timeout,
		retryLimit:   cfg.RetryLimit,
		createLimit:  cfg.CreateLimit,
	}, nil
}

// Register mounts the session routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/price-presets", h.Presets)
	r.With(optional(h.createLimit)).Post("/sessions", h.Create)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.With(optional(h.retryLimit)).Post("/retry", h.Retry)
		r.Put("/price-range", h.SetPriceRange)
		r.Post("/price-range/reset", h.ResetFilters)
		r.Post("/price-range/preset", h.ApplyPreset)
		r.Put("/sort", h.SetSortOrder)
		r.Put("/selection", h.Select)
	})
}

func optional(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

type priceRangeRequest struct {
	Low  decimal.NullDecimal `json:"low" validate:"required,gte=0"`
	High decimal.NullDecimal `json:"high" validate:"required,gte=0"`
}

type sortRequest struct {
	Order string `json:"order" validate:"required"`
}

type selectionRequest struct {
	ID *int64 `json:"id" validate:"required"`
}

type presetRequest struct {
	Preset string `json:"preset" validate:"required"`
}

// Presets handles GET /api/v1/price-presets.
func (h *Handler) Presets(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": offer.Presets()})
}

// Create handles POST /api/v1/sessions. The initial fetch runs before the
// response so the returned view is already settled.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id, p, err := h.registry.Create()
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("session_create_failed")
		common.WriteError(w, err)
		return
	}
	h.fetch(r, p)
	h.writeView(w, http.StatusCreated, id, p)
}

// Get handles GET /api/v1/sessions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.writeView(w, http.StatusOK, id, p)
}

// Delete handles DELETE /api/v1/sessions/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(chi.URLParam(r, "id")); err != nil {
		common.WriteError(w, common.NotFound("session not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Retry handles POST /api/v1/sessions/{id}/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	id, p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.fetch(r, p)
	h.writeView(w, http.StatusOK, id, p)
}

// SetPriceRange handles PUT /api/v1/sessions/{id}/price-range.
func (h *Handler) SetPriceRange(w http.ResponseWriter, r *http.Request) {
	id, p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req priceRangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	p.SetPriceRange(req.Low.Decimal, req.High.Decimal)
	h.writeView(w, http.StatusOK, id, p)
}

// ResetFilters handles POST /api/v1/sessions/{id}/price-range/reset.
func (h *Handler) ResetFilters(w http.ResponseWriter, r *http.Request) {
	id, p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	p.ResetFilters()
	h.writeView(w, http.StatusOK, id, p)
}

// ApplyPreset handles POST /api/v1/sessions/{id}/price-range/preset.
func (h *Handler) ApplyPreset(w http.ResponseWriter, r *http.Request) {
	id, p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req presetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := p.ApplyPreset(req.Preset); err != nil {
		names := make([]string, 0, len(offer.Presets()))
		for _, preset := range offer.Presets() {
			names = append(names, preset.Name)
		}
		common.WriteError(w, common.BadRequest("unknown price preset", err).WithDetails(map[string]any{"preset": names}))
		return
	}
	h.writeView(w, http.StatusOK, id, p)
}

// SetSortOrder handles PUT /api/v1/sessions/{id}/sort.
func (h *Handler) SetSortOrder(w http.ResponseWriter, r *http.Request) {
	id, p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req sortRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := offer.ParseSortOrder(req.Order)
	if err == nil {
		err = p.SetSortOrder(order)
	}
	if err != nil {
		common.WriteError(w, common.BadRequest("unknown sort order", err).WithDetails(map[string]any{"order": offer.SortOrders()}))
		return
	}
	h.writeView(w, http.StatusOK, id, p)
}

// Select handles PUT /api/v1/sessions/{id}/selection.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	id, p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	p.Select(*req.ID)
	h.writeView(w, http.StatusOK, id, p)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (string, *pipeline.Pipeline, bool) {
	id := chi.URLParam(r, "id")
	p, err := h.registry.Get(id)
	if err != nil {
		common.WriteError(w, common.NotFound("session not found"))
		return "", nil, false
	}
	return id, p, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := common.DecodeJSON(w, r, dst); err != nil {
		common.WriteError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		common.WriteError(w, err)
		return false
	}
	return true
}

// fetch runs a retry detached from the client's cancellation. Failures are
// already logged by the pipeline and surface in the view.
func (h *Handler) fetch(r *http.Request, p *pipeline.Pipeline) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.fetchTimeout)
	defer cancel()
	if err := p.Retry(ctx); errors.Is(err, pipeline.ErrSuperseded) {
		zerolog.Ctx(r.Context()).Debug().Msg("skips_fetch_superseded")
	}
}

func (h *Handler) writeView(w http.ResponseWriter, status int, id string, p *pipeline.Pipeline) {
	common.JSON(w, status, map[string]any{
		"data": map[string]any{
			"sessionId": id,
			"view":      p.View(),
		},
	})
}
