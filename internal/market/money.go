package market

import "github.com/shopspring/decimal"

// ServiceFeeRate is the marketplace fee applied on every cart subtotal.
var ServiceFeeRate = decimal.RequireFromString("0.05")

type Totals struct {
	Subtotal   decimal.Decimal
	ServiceFee decimal.Decimal
	Total      decimal.Decimal
}

// PricedQuantity is one line of a totals computation.
type PricedQuantity struct {
	Price    decimal.Decimal
	Quantity int64
}

// ComputeTotals derives cart/order totals from line items. It is the single
// source of truth for the derivation and is deterministic: the same item set
// always yields the same totals.
func ComputeTotals(items []PricedQuantity) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(it.Quantity)))
	}
	fee := subtotal.Mul(ServiceFeeRate)
	return Totals{
		Subtotal:   subtotal,
		ServiceFee: fee,
		Total:      subtotal.Add(fee),
	}
}
