package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/skip-hire/internal/obs"
	"github.com/noah-isme/skip-hire/internal/offer"
	"github.com/noah-isme/skip-hire/internal/skipapi"
)

// FetchFailedMessage is the only text users see when a fetch fails,
// whatever the cause.
const FetchFailedMessage = "Failed to load skip data. Please try again later."

// ErrSuperseded is returned by Retry when a newer Retry started before this
// one finished. The older result is discarded.
var ErrSuperseded = errors.New("pipeline: fetch superseded by a newer retry")

// Fetcher supplies offers in upstream order.
type Fetcher interface {
	ListSkips(ctx context.Context) ([]offer.Offer, error)
}

// Config wires a Pipeline.
type Config struct {
	Fetcher Fetcher
	Logger  *zerolog.Logger
	Now     func() time.Time
}

// Pipeline owns the fetched offers, the selection and the filter/sort
// settings for one user. All methods are safe for concurrent use; View
// returns a consistent snapshot.
type Pipeline struct {
	fetcher Fetcher
	logger  zerolog.Logger
	now     func() time.Time

	mu         sync.RWMutex
	offers     []offer.Offer
	selected   *int64
	loading    bool
	errMsg     string
	priceRange offer.PriceRange
	sortOrder  offer.SortOrder
	fetchedAt  time.Time

	generation uint64
	cancel     context.CancelFunc
}

// New returns a pipeline in the loading state with default filters. Call
// Retry to perform the initial fetch.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		fetcher:    cfg.Fetcher,
		logger:     logger,
		now:        now,
		loading:    true,
		priceRange: offer.DefaultPriceRange(),
		sortOrder:  offer.DefaultSortOrder,
	}, nil
}

// Retry fetches the offers again and replaces the previous result
// wholesale. On success the first fetched offer is selected; on failure the
// offers and selection are cleared and the view carries FetchFailedMessage.
// A Retry started while another is in flight cancels the older one, and
// only the newest commits. The returned error is the fetch failure, kept
// for logging.
func (p *Pipeline) Retry(ctx context.Context) error {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	if p.cancel != nil {
		p.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.loading = true
	p.errMsg = ""
	p.mu.Unlock()
	defer cancel()

	fetchCtx, span := otel.Tracer("pipeline.Pipeline").Start(fetchCtx, "Pipeline.Retry")
	defer span.End()
	span.SetAttributes(attribute.Int64("pipeline.generation", int64(gen)))

	start := p.now()
	offers, err := p.fetcher.ListSkips(fetchCtx)
	took := p.now().Sub(start)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		span.AddEvent("fetch superseded")
		return ErrSuperseded
	}
	p.cancel = nil
	p.loading = false
	p.fetchedAt = p.now()

	if err != nil {
		p.offers = nil
		p.selected = nil
		p.errMsg = FetchFailedMessage
		kind := skipapi.KindOf(err)
		result := kind.String()
		if kind == 0 {
			result = "error"
		}
		obs.ObserveSkipsFetch(result, took)
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		evt := p.logger.Warn().Err(err).Str("kind", result).Int64("duration_ms", took.Milliseconds())
		var fe *skipapi.FetchError
		if errors.As(err, &fe) && fe.StatusCode != 0 {
			evt = evt.Int("status", fe.StatusCode)
		}
		evt.Msg("skips_fetch_failed")
		return err
	}

	p.offers = slices.Clone(offers)
	if p.offers == nil {
		p.offers = []offer.Offer{}
	}
	p.errMsg = ""
	p.selected = nil
	if len(p.offers) > 0 {
		id := p.offers[0].ID
		p.selected = &id
	}
	obs.ObserveSkipsFetch("ok", took)
	span.SetAttributes(attribute.Int("skips.count", len(p.offers)))
	p.logger.Info().Int("count", len(p.offers)).Int64("duration_ms", took.Milliseconds()).Msg("skips_fetched")
	return nil
}

// Close cancels an in-flight fetch. The pipeline stays readable.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// SetPriceRange replaces the price bounds. Bounds are not clamped and an
// inverted range simply matches nothing.
func (p *Pipeline) SetPriceRange(low, high decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceRange = offer.PriceRange{Low: low, High: high}
}

// SetSortOrder changes the sort policy.
func (p *Pipeline) SetSortOrder(order offer.SortOrder) error {
	if !order.Valid() {
		return offer.ErrUnknownSortOrder
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sortOrder = order
	return nil
}

// Select marks id as chosen. The id is not checked against the offers;
// SelectedSummary resolves it.
func (p *Pipeline) Select(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = &id
}

// ResetFilters restores the full price range. Sort order and selection are
// kept.
func (p *Pipeline) ResetFilters() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceRange = offer.DefaultPriceRange()
}

// ErrUnknownPreset is returned by ApplyPreset for names outside offer.Presets.
var ErrUnknownPreset = errors.New("pipeline: unknown price preset")

// ApplyPreset sets the price range to the named preset.
func (p *Pipeline) ApplyPreset(name string) error {
	preset, ok := offer.LookupPreset(name)
	if !ok {
		return ErrUnknownPreset
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceRange = preset.Range
	return nil
}

// SelectedSummary resolves the selection against every fetched offer, not
// just the filtered ones. It returns nil when nothing is selected or the id
// is unknown.
func (p *Pipeline) SelectedSummary() *Checkout {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.checkoutLocked()
}

func (p *Pipeline) checkoutLocked() *Checkout {
	if p.selected == nil {
		return nil
	}
	o, ok := offer.FindByID(p.offers, *p.selected)
	if !ok {
		return nil
	}
	return newCheckout(o)
}
