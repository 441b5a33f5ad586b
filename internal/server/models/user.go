package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID                      string
	UserName                string
	Tier                    Tier
	TierExpiresAt           *time.Time
	LifetimePointsConverted decimal.Decimal
	MonthlyPointsConverted  decimal.Decimal
	LastMonthlyReset        *time.Time
	LifetimeFeesPaid        decimal.Decimal
	CreatedAt               time.Time
}

// UserStats is the read model behind getUserStats.
type UserStats struct {
	UserID          string          `json:"user_id"`
	PointsConverted decimal.Decimal `json:"points_converted"`
	FeesPaid        decimal.Decimal `json:"fees_paid"`
	MonthlyPoints   decimal.Decimal `json:"monthly_points"`
	Tier            Tier            `json:"tier"`
	TierExpiresAt   *time.Time      `json:"tier_expires_at,omitempty"`
}

// Stats projects u onto UserStats.
func (u *User) Stats() *UserStats {
	return &UserStats{
		UserID:          u.ID,
		PointsConverted: u.LifetimePointsConverted,
		FeesPaid:        u.LifetimeFeesPaid,
		MonthlyPoints:   u.MonthlyPointsConverted,
		Tier:            u.Tier,
		TierExpiresAt:   u.TierExpiresAt,
	}
}
