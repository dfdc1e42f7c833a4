package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skip-hire/internal/offer"
	"github.com/noah-isme/skip-hire/internal/pipeline"
	"github.com/noah-isme/skip-hire/internal/skipapi"
)

type stubFetcher struct {
	mu     sync.Mutex
	offers []offer.Offer
	err    error
	calls  int
}

func (s *stubFetcher) ListSkips(context.Context) ([]offer.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.offers, s.err
}

func (s *stubFetcher) set(offers []offer.Offer, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers, s.err = offers, err
}

func price(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func skip(id int64, base int64, flags ...string) offer.Offer {
	size := float64(id)
	o := offer.Offer{ID: id, Size: &size, HirePeriodDays: 14, PriceBeforeVAT: price(base), VAT: price(20)}
	for _, f := range flags {
		switch f {
		case "popular":
			o.Popular = true
		case "recommended":
			o.Recommended = true
		}
	}
	return o
}

func newPipeline(t *testing.T, f pipeline.Fetcher) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Config{Fetcher: f})
	require.NoError(t, err)
	return p
}

func ids(v pipeline.View) []int64 {
	out := make([]int64, 0, len(v.Offers))
	for _, c := range v.Offers {
		out = append(out, c.ID)
	}
	return out
}

func TestNewRequiresFetcher(t *testing.T) {
	_, err := pipeline.New(pipeline.Config{})
	require.Error(t, err)
}

func TestInitialViewIsLoading(t *testing.T) {
	p := newPipeline(t, &stubFetcher{})
	v := p.View()
	require.True(t, v.Loading)
	require.Empty(t, v.Error)
	require.NotNil(t, v.Offers)
	require.Empty(t, v.Offers)
	require.False(t, v.NoResults)
	require.True(t, v.PriceRange.Equal(offer.DefaultPriceRange()))
	require.Equal(t, offer.SortAscending, v.SortOrder)
	require.Equal(t, "all", v.ActivePreset)
}

func TestRetrySelectsFirstFetchedOffer(t *testing.T) {
	f := &stubFetcher{offers: []offer.Offer{skip(7, 500), skip(3, 200), skip(9, 300)}}
	p := newPipeline(t, f)

	require.NoError(t, p.Retry(context.Background()))
	v := p.View()
	require.False(t, v.Loading)
	require.Empty(t, v.Error)
	require.NotNil(t, v.SelectedID)
	require.EqualValues(t, 7, *v.SelectedID, "selection follows fetch order, not sort order")
	require.Equal(t, []int64{3, 9, 7}, ids(v))
	require.Equal(t, 3, v.TotalOffers)
	require.NotNil(t, v.FetchedAt)

	require.NotNil(t, v.Checkout)
	require.EqualValues(t, 7, v.Checkout.ID)
	require.Equal(t, "7 Yard Skip", v.Checkout.Title)
	require.Equal(t, "14 day hire period", v.Checkout.HirePeriodLabel)
	require.Equal(t, "£600.00 inc. VAT", v.Checkout.TotalLabel)
	require.Nil(t, v.Checkout.TransportCost)

	for _, c := range v.Offers {
		require.Equal(t, c.ID == 7, c.Selected)
	}
}

func TestRetryEmptyClearsSelection(t *testing.T) {
	f := &stubFetcher{offers: []offer.Offer{skip(1, 100)}}
	p := newPipeline(t, f)
	require.NoError(t, p.Retry(context.Background()))
	require.NotNil(t, p.View().SelectedID)

	f.set([]offer.Offer{}, nil)
	require.NoError(t, p.Retry(context.Background()))
	v := p.View()
	require.Nil(t, v.SelectedID)
	require.Nil(t, v.Checkout)
	require.Empty(t, v.Error)
	require.True(t, v.NoResults)
}

func TestRetryFailureClearsOffersAndSelection(t *testing.T) {
	f := &stubFetcher{offers: []offer.Offer{skip(1, 100), skip(2, 200)}}
	p := newPipeline(t, f)
	require.NoError(t, p.Retry(context.Background()))

	fetchErr := &skipapi.FetchError{Kind: skipapi.BadStatus, StatusCode: 503}
	f.set(nil, fetchErr)
	err := p.Retry(context.Background())
	require.ErrorIs(t, err, skipapi.ErrBadStatus)

	v := p.View()
	require.False(t, v.Loading)
	require.Equal(t, pipeline.FetchFailedMessage, v.Error)
	require.Empty(t, v.Offers)
	require.Zero(t, v.TotalOffers)
	require.Nil(t, v.SelectedID)
	require.Nil(t, v.Checkout)
	require.False(t, v.NoResults)

	f.set([]offer.Offer{skip(4, 100)}, nil)
	require.NoError(t, p.Retry(context.Background()))
	v = p.View()
	require.Empty(t, v.Error)
	require.EqualValues(t, 4, *v.SelectedID)
}

func TestRetryFailureCollapsesEveryKind(t *testing.T) {
	errs := []error{
		&skipapi.FetchError{Kind: skipapi.Unreachable, Err: errors.New("dial tcp")},
		&skipapi.FetchError{Kind: skipapi.MalformedBody},
		errors.New("boom"),
	}
	for _, fetchErr := range errs {
		p := newPipeline(t, &stubFetcher{err: fetchErr})
		require.Error(t, p.Retry(context.Background()))
		require.Equal(t, pipeline.FetchFailedMessage, p.View().Error)
	}
}

func TestFilterAndSortCommands(t *testing.T) {
	f := &stubFetcher{offers: []offer.Offer{
		skip(1, 375, "popular"),     // 450
		skip(2, 375),                // 450
		skip(3, 250, "recommended"), // 300
		skip(4, 1000),               // 1200
	}}
	p := newPipeline(t, f)
	require.NoError(t, p.Retry(context.Background()))

	require.Equal(t, []int64{3, 1, 2, 4}, ids(p.View()))

	require.NoError(t, p.SetSortOrder(offer.SortDescending))
	require.Equal(t, []int64{4, 1, 2, 3}, ids(p.View()))

	require.NoError(t, p.SetSortOrder(offer.SortRecommended))
	require.Equal(t, []int64{3, 1, 2, 4}, ids(p.View()))

	require.ErrorIs(t, p.SetSortOrder("cheapest"), offer.ErrUnknownSortOrder)
	require.Equal(t, offer.SortRecommended, p.View().SortOrder)

	p.SetPriceRange(decimal.NewFromInt(300), decimal.NewFromInt(450))
	v := p.View()
	require.Equal(t, []int64{3, 1, 2}, ids(v), "bounds are inclusive")
	require.Empty(t, v.ActivePreset)

	p.SetPriceRange(decimal.NewFromInt(800), decimal.NewFromInt(100))
	v = p.View()
	require.Empty(t, v.Offers)
	require.True(t, v.NoResults)
}

func TestSelectionIsStickyAcrossFilters(t *testing.T) {
	f := &stubFetcher{offers: []offer.Offer{skip(1, 100), skip(2, 1000)}}
	p := newPipeline(t, f)
	require.NoError(t, p.Retry(context.Background()))

	p.Select(2)
	p.SetPriceRange(decimal.Zero, decimal.NewFromInt(200))

	v := p.View()
	require.Equal(t, []int64{1}, ids(v))
	require.EqualValues(t, 2, *v.SelectedID)
	require.NotNil(t, v.Checkout, "checkout resolves against every fetched offer")
	require.EqualValues(t, 2, v.Checkout.ID)
	require.Equal(t, v.Checkout, p.SelectedSummary())
}

func TestSelectUnknownIDHasNoCheckout(t *testing.T) {
	p := newPipeline(t, &stubFetcher{offers: []offer.Offer{skip(1, 100)}})
	require.NoError(t, p.Retry(context.Background()))

	p.Select(999)
	v := p.View()
	require.EqualValues(t, 999, *v.SelectedID)
	require.Nil(t, v.Checkout)
	require.Nil(t, p.SelectedSummary())
}

func TestResetFiltersKeepsSortAndSelection(t *testing.T) {
	p := newPipeline(t, &stubFetcher{offers: []offer.Offer{skip(1, 100), skip(2, 200)}})
	require.NoError(t, p.Retry(context.Background()))
	require.NoError(t, p.SetSortOrder(offer.SortDescending))
	p.Select(2)
	p.SetPriceRange(decimal.NewFromInt(1000), decimal.NewFromInt(1100))
	require.True(t, p.View().NoResults)

	p.ResetFilters()
	v := p.View()
	require.True(t, v.PriceRange.Equal(offer.DefaultPriceRange()))
	require.Equal(t, offer.SortDescending, v.SortOrder)
	require.EqualValues(t, 2, *v.SelectedID)
	require.Len(t, v.Offers, 2)
}

func TestApplyPreset(t *testing.T) {
	p := newPipeline(t, &stubFetcher{offers: []offer.Offer{skip(1, 250), skip(2, 400), skip(3, 600)}})
	require.NoError(t, p.Retry(context.Background()))

	require.NoError(t, p.ApplyPreset("400-600"))
	v := p.View()
	require.Equal(t, "400-600", v.ActivePreset)
	require.Equal(t, []int64{2}, ids(v))

	require.ErrorIs(t, p.ApplyPreset("cheap"), pipeline.ErrUnknownPreset)
	require.Equal(t, "400-600", p.View().ActivePreset)
}

func TestNullPricesTotalZero(t *testing.T) {
	o := offer.Offer{ID: 5, HirePeriodDays: 7}
	p := newPipeline(t, &stubFetcher{offers: []offer.Offer{o}})
	require.NoError(t, p.Retry(context.Background()))

	v := p.View()
	require.Len(t, v.Offers, 1)
	require.True(t, v.Offers[0].Total.IsZero())
	require.Equal(t, "£0.00", v.Offers[0].TotalLabel)
	require.Equal(t, "N/A", v.Offers[0].SizeLabel)
	require.Equal(t, "N/A Yard Skip", v.Checkout.Title)
}

func TestViewIsASnapshot(t *testing.T) {
	p := newPipeline(t, &stubFetcher{offers: []offer.Offer{skip(1, 100)}})
	require.NoError(t, p.Retry(context.Background()))

	v := p.View()
	*v.SelectedID = 42
	v.Offers[0].ID = 42
	after := p.View()
	require.EqualValues(t, 1, *after.SelectedID)
	require.EqualValues(t, 1, after.Offers[0].ID)
}

// blockingFetcher parks each call until released so tests can overlap retries.
type blockingFetcher struct {
	started chan struct{}
	release chan []offer.Offer
}

func (b *blockingFetcher) ListSkips(ctx context.Context) ([]offer.Offer, error) {
	b.started <- struct{}{}
	select {
	case offers := <-b.release:
		return offers, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestOverlappingRetriesNewestWins(t *testing.T) {
	f := &blockingFetcher{started: make(chan struct{}), release: make(chan []offer.Offer)}
	p := newPipeline(t, f)

	firstDone := make(chan error, 1)
	go func() { firstDone <- p.Retry(context.Background()) }()
	<-f.started
	require.True(t, p.View().Loading)

	secondDone := make(chan error, 1)
	go func() { secondDone <- p.Retry(context.Background()) }()
	<-f.started

	select {
	case err := <-firstDone:
		require.ErrorIs(t, err, pipeline.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("first retry was not cancelled")
	}
	require.True(t, p.View().Loading, "superseded retry must not commit")

	f.release <- []offer.Offer{skip(8, 100)}
	require.NoError(t, <-secondDone)

	v := p.View()
	require.False(t, v.Loading)
	require.Empty(t, v.Error)
	require.EqualValues(t, 8, *v.SelectedID)
}

func TestCloseCancelsInFlightFetch(t *testing.T) {
	f := &blockingFetcher{started: make(chan struct{}), release: make(chan []offer.Offer)}
	p := newPipeline(t, f)

	done := make(chan error, 1)
	go func() { done <- p.Retry(context.Background()) }()
	<-f.started
	p.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
	require.Equal(t, pipeline.FetchFailedMessage, p.View().Error)
}

func TestConcurrentCommandsAndViews(t *testing.T) {
	p := newPipeline(t, &stubFetcher{offers: []offer.Offer{skip(1, 100), skip(2, 200), skip(3, 300)}})
	require.NoError(t, p.Retry(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				switch (i + j) % 5 {
				case 0:
					p.Select(int64(j%3 + 1))
				case 1:
					_ = p.SetSortOrder(offer.SortOrders()[j%3])
				case 2:
					p.SetPriceRange(decimal.NewFromInt(int64(j)), decimal.NewFromInt(1500))
				case 3:
					p.ResetFilters()
				default:
					v := p.View()
					assert.LessOrEqual(t, len(v.Offers), 3)
				}
			}
		}(i)
	}
	wg.Wait()
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// slowFetcher advances the clock as if the upstream took d to answer.
type slowFetcher struct {
	clock  *steppingClock
	d      time.Duration
	offers []offer.Offer
}

func (f slowFetcher) ListSkips(context.Context) ([]offer.Offer, error) {
	f.clock.Advance(f.d)
	return f.offers, nil
}

func TestRetryUsesInjectedClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := &steppingClock{now: start}
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	p, err := pipeline.New(pipeline.Config{
		Fetcher: slowFetcher{clock: clock, d: 1500 * time.Millisecond, offers: []offer.Offer{skip(4, 300)}},
		Logger:  &logger,
		Now:     clock.Now,
	})
	require.NoError(t, err)
	require.NoError(t, p.Retry(context.Background()))

	v := p.View()
	require.NotNil(t, v.FetchedAt)
	require.True(t, v.FetchedAt.Equal(start.Add(1500*time.Millisecond)))

	var entry struct {
		Message    string `json:"message"`
		DurationMS int64  `json:"duration_ms"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "skips_fetched", entry.Message)
	require.Equal(t, int64(1500), entry.DurationMS)
}
