package posting

import "github.com/shopspring/decimal"

// NegligibleVAT is the largest VAT amount that is not booked on its own line
var NegligibleVAT = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

// SplitVAT splits a gross amount into net and VAT for a percentage rate. The
// net amount is rounded to the cent and VAT takes the remainder, so net+vat
// always equals gross. A VAT amount of a cent or less is folded into net.
func SplitVAT(gross, rate decimal.Decimal) (net, vat decimal.Decimal) {
	if !rate.IsPositive() {
		return gross, decimal.Zero
	}
	net = gross.Div(decimal.NewFromInt(1).Add(rate.Div(hundred))).Round(2)
	vat = gross.Sub(net)
	if vat.Abs().LessThanOrEqual(NegligibleVAT) {
		return gross, decimal.Zero
	}
	return net, vat
}
