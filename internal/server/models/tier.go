package models

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/shopspring/decimal"
)

// Tier is a membership level derived from monthly converted volume.
type Tier string

const (
	TierStandard Tier = "STANDARD"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

func (t Tier) Valid() bool {
	switch t {
	case TierStandard, TierSilver, TierGold, TierPlatinum:
		return true
	}
	return false
}

// ParseTier accepts any letter case.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("tier %q: %w", s, common.ErrInvalidInput)
	}
	return t, nil
}

// TierBenefit is static reference data, one row per tier.
//
// ConversionFeeRate is a fraction (0.005 means 0.5%) applied to the part of a
// conversion above FreeConversionLimit. The P2P bounds are percentages
// (0.5 means 0.5%) that clamp the dynamic seller fee of a trade.
type TierBenefit struct {
	Tier                   Tier
	MonthlyPointsThreshold decimal.Decimal
	FreeConversionLimit    decimal.Decimal
	ConversionFeeRate      decimal.Decimal
	P2PMinFeePercent       decimal.Decimal
	P2PMaxFeePercent       decimal.Decimal
	MonthlyExpiryDays      int
}

// DefaultTierBenefits is the seed table loaded into an empty database.
func DefaultTierBenefits() []TierBenefit {
	d := decimal.RequireFromString
	return []TierBenefit{
		{Tier: TierStandard, MonthlyPointsThreshold: d("0"), FreeConversionLimit: d("10000"), ConversionFeeRate: d("0.005"), P2PMinFeePercent: d("0.5"), P2PMaxFeePercent: d("3"), MonthlyExpiryDays: 30},
		{Tier: TierSilver, MonthlyPointsThreshold: d("50000"), FreeConversionLimit: d("25000"), ConversionFeeRate: d("0.004"), P2PMinFeePercent: d("0.4"), P2PMaxFeePercent: d("2.5"), MonthlyExpiryDays: 30},
		{Tier: TierGold, MonthlyPointsThreshold: d("100000"), FreeConversionLimit: d("50000"), ConversionFeeRate: d("0.003"), P2PMinFeePercent: d("0.3"), P2PMaxFeePercent: d("2"), MonthlyExpiryDays: 30},
		{Tier: TierPlatinum, MonthlyPointsThreshold: d("250000"), FreeConversionLimit: d("100000"), ConversionFeeRate: d("0.002"), P2PMinFeePercent: d("0.2"), P2PMaxFeePercent: d("1.5"), MonthlyExpiryDays: 30},
	}
}
