package pricing

import "github.com/shopspring/decimal"

// Amounts is the monetary outcome of pricing one reception.
type Amounts struct {
	PricePerKG     decimal.Decimal
	GrossAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	NetAmount      decimal.Decimal
}

// Compute derives the payable amounts from the reception weights and the unit
// price. The discount amount is not stored independently anywhere: it is
// always gross minus net, so the three amounts stay consistent by
// construction.
func Compute(originalWeight, finalWeight, pricePerKG decimal.Decimal) Amounts {
	gross := originalWeight.Mul(pricePerKG)
	net := finalWeight.Mul(pricePerKG)
	return Amounts{
		PricePerKG:     pricePerKG,
		GrossAmount:    gross,
		NetAmount:      net,
		DiscountAmount: gross.Sub(net),
	}
}
