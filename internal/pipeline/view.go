package pipeline

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/skip-hire/internal/offer"
	"github.com/noah-isme/skip-hire/internal/pricing"
)

// Card is one offer as rendered: the raw fields plus derived display values.
type Card struct {
	offer.Offer
	Total          decimal.Decimal `json:"total"`
	TotalLabel     string          `json:"totalLabel"`
	SizeLabel      string          `json:"sizeLabel"`
	Badge          string          `json:"badge,omitempty"`
	PlacementLabel string          `json:"placementLabel"`
	HeavyWaste     string          `json:"heavyWasteLabel"`
	Selected       bool            `json:"selected"`
}

// Checkout summarises the selected offer for the checkout bar.
type Checkout struct {
	ID              int64            `json:"id"`
	Title           string           `json:"title"`
	HirePeriodDays  int              `json:"hirePeriodDays"`
	HirePeriodLabel string           `json:"hirePeriodLabel"`
	Total           decimal.Decimal  `json:"total"`
	TotalLabel      string           `json:"totalLabel"`
	TransportCost   *decimal.Decimal `json:"transportCost,omitempty"`
}

func newCheckout(o offer.Offer) *Checkout {
	total := o.Total()
	c := &Checkout{
		ID:              o.ID,
		Title:           o.SizeLabel() + " Yard Skip",
		HirePeriodDays:  o.HirePeriodDays,
		HirePeriodLabel: strconv.Itoa(o.HirePeriodDays) + " day hire period",
		Total:           total,
		TotalLabel:      pricing.Format(total) + " inc. VAT",
	}
	if o.TransportCost.Valid {
		cost := o.TransportCost.Decimal
		c.TransportCost = &cost
	}
	return c
}

// View is an immutable snapshot of the pipeline for renderers.
type View struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	// Offers are filtered and sorted; never nil.
	Offers []Card `json:"offers"`
	// TotalOffers counts every fetched offer before filtering.
	TotalOffers  int              `json:"totalOffers"`
	NoResults    bool             `json:"noResults"`
	SelectedID   *int64           `json:"selectedId"`
	Checkout     *Checkout        `json:"checkout"`
	PriceRange   offer.PriceRange `json:"priceRange"`
	ActivePreset string           `json:"activePreset,omitempty"`
	SortOrder    offer.SortOrder  `json:"sortOrder"`
	FetchedAt    *time.Time       `json:"fetchedAt,omitempty"`
}

// View filters and sorts the current offers. Nothing is cached; each call
// derives the result from the stored offers and settings.
func (p *Pipeline) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v := View{
		Loading:     p.loading,
		Error:       p.errMsg,
		TotalOffers: len(p.offers),
		PriceRange:  p.priceRange,
		SortOrder:   p.sortOrder,
		Checkout:    p.checkoutLocked(),
	}
	if preset, ok := offer.ActivePreset(p.priceRange); ok {
		v.ActivePreset = preset.Name
	}
	if p.selected != nil {
		id := *p.selected
		v.SelectedID = &id
	}
	if !p.fetchedAt.IsZero() {
		at := p.fetchedAt
		v.FetchedAt = &at
	}

	visible := offer.Sort(offer.Filter(p.offers, p.priceRange), p.sortOrder)
	v.Offers = make([]Card, 0, len(visible))
	for _, o := range visible {
		total := o.Total()
		v.Offers = append(v.Offers, Card{
			Offer:          o,
			Total:          total,
			TotalLabel:     pricing.Format(total),
			SizeLabel:      o.SizeLabel(),
			Badge:          o.Badge(),
			PlacementLabel: o.PlacementLabel(),
			HeavyWaste:     o.HeavyWasteLabel(),
			Selected:       v.SelectedID != nil && *v.SelectedID == o.ID,
		})
	}
	v.NoResults = !v.Loading && v.Error == "" && len(v.Offers) == 0
	return v
}
