package offer

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Bounds of the configurable price range, in pounds.
var (
	MinPrice  = decimal.Zero
	MaxPrice  = decimal.NewFromInt(1500)
	PriceStep = decimal.NewFromInt(50)
)

// PriceRange is a closed interval of VAT-inclusive totals.
type PriceRange struct {
	Low  decimal.Decimal `json:"low"`
	High decimal.Decimal `json:"high"`
}

// DefaultPriceRange spans the entire configurable range.
func DefaultPriceRange() PriceRange {
	return PriceRange{Low: MinPrice, High: MaxPrice}
}

// Contains reports whether total lies within the range, inclusive on both ends.
// An inverted range contains nothing.
func (r PriceRange) Contains(total decimal.Decimal) bool {
	return total.GreaterThanOrEqual(r.Low) && total.LessThanOrEqual(r.High)
}

// Equal reports whether both bounds match numerically.
func (r PriceRange) Equal(other PriceRange) bool {
	return r.Low.Equal(other.Low) && r.High.Equal(other.High)
}

// Filter returns the offers whose total lies within r, preserving order.
// The input slice is not modified.
func Filter(offers []Offer, r PriceRange) []Offer {
	out := make([]Offer, 0, len(offers))
	for _, o := range offers {
		if r.Contains(o.Total()) {
			out = append(out, o)
		}
	}
	return out
}

// Preset is a named shortcut for a commonly used price range.
type Preset struct {
	Name  string     `json:"name"`
	Label string     `json:"label"`
	Range PriceRange `json:"range"`
}

var presets = []Preset{
	{Name: "under-400", Label: "Under £400", Range: PriceRange{Low: decimal.Zero, High: decimal.NewFromInt(400)}},
	{Name: "400-600", Label: "£400 - £600", Range: PriceRange{Low: decimal.NewFromInt(400), High: decimal.NewFromInt(600)}},
	{Name: "over-600", Label: "Over £600", Range: PriceRange{Low: decimal.NewFromInt(600), High: MaxPrice}},
	{Name: "all", Label: "All Prices", Range: DefaultPriceRange()},
}

// Presets lists the price shortcuts in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset finds a preset by name, case-insensitively.
func LookupPreset(name string) (Preset, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// ActivePreset returns the preset whose range equals r, if any.
func ActivePreset(r PriceRange) (Preset, bool) {
	for _, p := range presets {
		if p.Range.Equal(r) {
			return p, true
		}
	}
	return Preset{}, false
}
