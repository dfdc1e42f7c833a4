package offer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// SortOrder selects how the filtered offers are ordered.
type SortOrder string

const (
	SortAscending   SortOrder = "asc"
	SortDescending  SortOrder = "desc"
	SortRecommended SortOrder = "recommended"
)

// DefaultSortOrder is the order used before the user picks one.
const DefaultSortOrder = SortAscending

// ErrUnknownSortOrder is returned by ParseSortOrder for unsupported values.
var ErrUnknownSortOrder = errors.New("offer: unknown sort order")

// SortOrders lists the supported orders in display order.
func SortOrders() []SortOrder {
	return []SortOrder{SortAscending, SortDescending, SortRecommended}
}

// ParseSortOrder normalises user input into a SortOrder.
func ParseSortOrder(value string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "asc", "ascending", "price:asc":
		return SortAscending, nil
	case "desc", "descending", "price:desc":
		return SortDescending, nil
	case "recommended":
		return SortRecommended, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSortOrder, value)
	}
}

// Valid reports whether s is one of the supported orders.
func (s SortOrder) Valid() bool {
	return slices.Contains(SortOrders(), s)
}

// Label is the button caption for the order.
func (s SortOrder) Label() string {
	switch s {
	case SortAscending:
		return "Price ↑"
	case SortDescending:
		return "Price ↓"
	case SortRecommended:
		return "Recommended"
	default:
		return string(s)
	}
}

// Sort returns a new slice ordered by the given policy. Ties keep their
// relative input order. The recommended order ranks recommended offers first,
// then popular ones, and applies no price tiebreak.
func Sort(offers []Offer, order SortOrder) []Offer {
	out := slices.Clone(offers)
	if out == nil {
		out = []Offer{}
	}
	switch order {
	case SortAscending:
		slices.SortStableFunc(out, func(a, b Offer) int { return a.Total().Cmp(b.Total()) })
	case SortDescending:
		slices.SortStableFunc(out, func(a, b Offer) int { return b.Total().Cmp(a.Total()) })
	case SortRecommended:
		slices.SortStableFunc(out, compareRecommended)
	}
	return out
}

func compareRecommended(a, b Offer) int {
	if a.Recommended != b.Recommended {
		if a.Recommended {
			return -1
		}
		return 1
	}
	if a.Popular != b.Popular {
		if a.Popular {
			return -1
		}
		return 1
	}
	return 0
}
