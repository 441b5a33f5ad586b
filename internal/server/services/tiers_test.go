package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTable() *TierTable { return NewTierTable(models.DefaultTierBenefits()) }

func TestTierTable_Qualify(t *testing.T) {
	table := defaultTable()

	assert.Equal(t, models.TierStandard, table.Qualify(d("0")).Tier)
	assert.Equal(t, models.TierStandard, table.Qualify(d("49999.99")).Tier)
	assert.Equal(t, models.TierSilver, table.Qualify(d("50000")).Tier)
	assert.Equal(t, models.TierGold, table.Qualify(d("100000")).Tier)
	assert.Equal(t, models.TierPlatinum, table.Qualify(d("1000000")).Tier)
}

func TestTierTable_BenefitFallback(t *testing.T) {
	table := defaultTable()
	assert.Equal(t, models.TierGold, table.Benefit(models.TierGold).Tier)
	assert.Equal(t, models.TierStandard, table.Benefit("BRONZE").Tier)

	empty := NewTierTable(nil)
	assert.Equal(t, models.TierStandard, empty.Qualify(d("5")).Tier)
}

func TestApplyActivity_FirstActivity(t *testing.T) {
	now := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	u := &models.User{ID: "u", Tier: models.TierStandard}

	ApplyActivity(u, defaultTable(), d("60000"), d("125"), now)

	assert.Equal(t, "60000", u.MonthlyPointsConverted.String())
	assert.Equal(t, "60000", u.LifetimePointsConverted.String())
	assert.Equal(t, "125", u.LifetimeFeesPaid.String())
	assert.Equal(t, models.TierSilver, u.Tier)
	require.NotNil(t, u.TierExpiresAt)
	assert.Equal(t, now.AddDate(0, 0, 30), *u.TierExpiresAt)
	require.NotNil(t, u.LastMonthlyReset)
	assert.Equal(t, now, *u.LastMonthlyReset)
}

func TestApplyActivity_SameMonthAccumulates(t *testing.T) {
	reset := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	exp := reset.AddDate(0, 0, 30)
	u := &models.User{
		Tier: models.TierStandard, TierExpiresAt: &exp, LastMonthlyReset: &reset,
		MonthlyPointsConverted: d("40000"), LifetimePointsConverted: d("90000"),
	}
	now := time.Date(2026, 4, 28, 0, 0, 0, 0, time.UTC)

	ApplyActivity(u, defaultTable(), d("5000"), d("0"), now)
	assert.Equal(t, "45000", u.MonthlyPointsConverted.String())
	assert.Equal(t, models.TierStandard, u.Tier)
	assert.Equal(t, exp, *u.TierExpiresAt, "unchanged tier keeps its expiry")
	assert.Equal(t, reset, *u.LastMonthlyReset)

	ApplyActivity(u, defaultTable(), d("5000"), d("0"), now)
	assert.Equal(t, models.TierSilver, u.Tier)
	assert.Equal(t, now.AddDate(0, 0, 30), *u.TierExpiresAt)
}

func TestApplyActivity_NewMonthResetsToIncoming(t *testing.T) {
	reset := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)
	exp := reset.AddDate(0, 0, 30)
	u := &models.User{
		Tier: models.TierGold, TierExpiresAt: &exp, LastMonthlyReset: &reset,
		MonthlyPointsConverted: d("150000"),
	}
	now := time.Date(2026, 4, 1, 0, 30, 0, 0, time.UTC)

	ApplyActivity(u, defaultTable(), d("700"), d("0"), now)
	assert.Equal(t, "700", u.MonthlyPointsConverted.String())
	assert.Equal(t, models.TierStandard, u.Tier)
	assert.Equal(t, now, *u.LastMonthlyReset)
}

func TestApplyActivity_SameMonthDifferentYear(t *testing.T) {
	reset := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	u := &models.User{LastMonthlyReset: &reset, MonthlyPointsConverted: d("99")}
	ApplyActivity(u, defaultTable(), d("1"), d("0"), time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "1", u.MonthlyPointsConverted.String())
}

func TestTierEngine_RecordActivity(t *testing.T) {
	st := newMemStore()
	st.addUser("u-1", models.TierStandard)
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	now := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	e := NewTierEngine(db, st, defaultTable(), fixedClock(now), logging.Nop{}, nil)

	require.NoError(t, e.RecordActivity(context.Background(), "u-1", d("100000"), d("270")))
	u := st.users["u-1"]
	assert.Equal(t, models.TierGold, u.Tier)
	assert.Equal(t, "270", u.LifetimeFeesPaid.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTierEngine_RecordActivity_UnknownUser(t *testing.T) {
	st := newMemStore()
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	e := NewTierEngine(db, st, defaultTable(), fixedClock(time.Now()), logging.Nop{}, nil)
	err := e.RecordActivity(context.Background(), "ghost", d("1"), d("0"))
	assert.True(t, errors.Is(err, common.ErrUserNotFound))
}
