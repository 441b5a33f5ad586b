package services

import (
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/shopspring/decimal"
)

// PointPlaces is the precision of every points amount.
const PointPlaces = 2

var (
	hundred          = decimal.NewFromInt(100)
	tradeFeeFraction = decimal.RequireFromString("0.10")
)

// RoundPoints rounds half away from zero to PointPlaces.
func RoundPoints(d decimal.Decimal) decimal.Decimal {
	return d.Round(PointPlaces)
}

// FloorPoints truncates to PointPlaces. Converted credits use it so that no
// chain of conversions can round points into existence.
func FloorPoints(d decimal.Decimal) decimal.Decimal {
	return d.RoundDown(PointPlaces)
}

// FeeCalculator computes conversion and P2P settlement fees. It holds no
// state and does no I/O.
type FeeCalculator struct{}

// ConversionFee charges ConversionFeeRate on the part of amount above the
// tier's free conversion limit.
func (FeeCalculator) ConversionFee(b models.TierBenefit, amount decimal.Decimal) decimal.Decimal {
	excess := amount.Sub(b.FreeConversionLimit)
	if !excess.IsPositive() {
		return decimal.Zero
	}
	return RoundPoints(excess.Mul(b.ConversionFeeRate))
}

// TradeFeePercent returns the seller's fee in percent: a tenth of the
// discount granted below market, clamped to the tier's P2P bounds. A
// premium over market (negative savings) lands on the floor.
func (FeeCalculator) TradeFeePercent(b models.TierBenefit, savingsPercent decimal.Decimal) decimal.Decimal {
	pct := savingsPercent.Mul(tradeFeeFraction)
	if pct.LessThan(b.P2PMinFeePercent) {
		return b.P2PMinFeePercent
	}
	if pct.GreaterThan(b.P2PMaxFeePercent) {
		return b.P2PMaxFeePercent
	}
	return pct
}

// SellerFee applies feePercent to the amount the seller receives.
func (FeeCalculator) SellerFee(amountRequested, feePercent decimal.Decimal) decimal.Decimal {
	return RoundPoints(amountRequested.Mul(feePercent).Div(hundred))
}
