package pricing

import "github.com/shopspring/decimal"

// Money represents a monetary amount in pounds sterling.
type Money = decimal.Decimal

var hundred = decimal.NewFromInt(100)

// TotalPrice returns the VAT-inclusive price: base + base*vat/100.
// A missing base price or VAT percentage counts as zero; incomplete listings
// from the skips API omit them.
func TotalPrice(priceBeforeVAT, vatPercent decimal.NullDecimal) Money {
	base := valueOrZero(priceBeforeVAT)
	vat := valueOrZero(vatPercent)
	return base.Add(base.Mul(vat).Div(hundred))
}

// VATAmount returns only the tax component of TotalPrice.
func VATAmount(priceBeforeVAT, vatPercent decimal.NullDecimal) Money {
	base := valueOrZero(priceBeforeVAT)
	return base.Mul(valueOrZero(vatPercent)).Div(hundred)
}

// Format renders an amount the way the picker displays prices, e.g. "£324.00".
func Format(m Money) string {
	if m.IsNegative() {
		return "-£" + m.Neg().StringFixed(2)
	}
	return "£" + m.StringFixed(2)
}

func valueOrZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}
