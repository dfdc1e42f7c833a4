package offer

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/skip-hire/internal/pricing"
)

// Offer is one skip-rental option as returned by the skips API. Offers are
// treated as immutable once fetched.
type Offer struct {
	ID               int64               `json:"id"`
	Size             *float64            `json:"size"`
	HirePeriodDays   int                 `json:"hire_period_days"`
	PriceBeforeVAT   decimal.NullDecimal `json:"price_before_vat"`
	VAT              decimal.NullDecimal `json:"vat"`
	TransportCost    decimal.NullDecimal `json:"transport_cost"`
	AllowedOnRoad    bool                `json:"allowed_on_road"`
	AllowsHeavyWaste bool                `json:"allows_heavy_waste"`
	Popular          bool                `json:"popular,omitempty"`
	Recommended      bool                `json:"recommended,omitempty"`
	Area             string              `json:"area"`
	Postcode         string              `json:"postcode"`
}

// Total returns the VAT-inclusive price used for filtering, sorting and display.
func (o Offer) Total() decimal.Decimal {
	return pricing.TotalPrice(o.PriceBeforeVAT, o.VAT)
}

// SizeLabel renders the skip size in yards, or "N/A" when the API omitted it.
func (o Offer) SizeLabel() string {
	if o.Size == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*o.Size, 'f', -1, 64)
}

// Badge returns the highlight shown on the card. Recommended wins over popular.
func (o Offer) Badge() string {
	switch {
	case o.Recommended:
		return "Recommended"
	case o.Popular:
		return "Popular"
	default:
		return ""
	}
}

// PlacementLabel describes where the skip may be placed.
func (o Offer) PlacementLabel() string {
	if o.AllowedOnRoad {
		return "Road Placement"
	}
	return "Private Property Only"
}

// HeavyWasteLabel describes whether heavy waste is accepted.
func (o Offer) HeavyWasteLabel() string {
	if o.AllowsHeavyWaste {
		return "Heavy Waste OK"
	}
	return "No Heavy Waste"
}

// FindByID looks up an offer by id in fetch order.
func FindByID(offers []Offer, id int64) (Offer, bool) {
	for _, o := range offers {
		if o.ID == id {
			return o, true
		}
	}
	return Offer{}, false
}
