package offers

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var offerCols = []string{"id", "creator_id", "from_program", "to_program", "amount_offered", "amount_requested",
	"market_rate", "custom_rate", "savings_percent", "description", "status", "created_at", "expires_at", "closed_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+trade_offers`).
		WithArgs(sqlmock.AnyArg(), "u-1", models.ProgramQantas, models.ProgramGYG,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"", models.OfferOpen, now, now.AddDate(0, 0, 7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	o := &models.TradeOffer{
		CreatorID: "u-1", FromProgram: models.ProgramQantas, ToProgram: models.ProgramGYG,
		AmountOffered: decimal.NewFromInt(1000), AmountRequested: decimal.NewFromInt(2000),
		CreatedAt: now, ExpiresAt: now.AddDate(0, 0, 7),
	}
	require.NoError(t, repo.Create(context.Background(), o))
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, models.OfferOpen, o.Status)
}

func TestGetByIDForUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)FROM\s+trade_offers\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE`).
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows(offerCols).AddRow("o-1", "u-1", "QANTAS", "GYG", "1000", "2000",
			"2.25", "2", "-11.1111", "", "cancelled", now, now.Add(time.Hour), now))

	o, err := repo.GetByIDForUpdate(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.OfferCancelled, o.Status)
	require.NotNil(t, o.ClosedAt)
	assert.False(t, o.IsOpen())
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+trade_offers`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, common.ErrOfferNotFound))
}

func TestSetStatus(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Now()

	mock.ExpectExec(`(?s)^UPDATE\s+trade_offers\s+SET\s+status\s*=\s*\$2,\s*closed_at\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1\s+AND\s+status\s*=\s*'open'`).
		WithArgs("o-1", models.OfferExpired, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetStatus(context.Background(), "o-1", models.OfferExpired, at))

	mock.ExpectExec(`UPDATE\s+trade_offers`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.SetStatus(context.Background(), "o-1", models.OfferCompleted, at)
	assert.True(t, errors.Is(err, common.ErrOfferNotOpen))
}

func TestListExpiredOpen(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`(?s)SELECT\s+id\s+FROM\s+trade_offers\s+WHERE\s+status\s*=\s*'open'\s+AND\s+expires_at\s*<\s*\$1\s+AND\s+id::text\s*>\s*\$2\s+ORDER\s+BY\s+id::text`).
		WithArgs(now, "o-0", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("o-1").AddRow("o-2"))

	ids, err := repo.ListExpiredOpen(context.Background(), now, "o-0", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-1", "o-2"}, ids)
}

func TestListOpen_Filter(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`(?s)FROM\s+trade_offers\s+WHERE\s+status\s*=\s*'open'`).
		WithArgs("QANTAS", "", 20).
		WillReturnRows(sqlmock.NewRows(offerCols).AddRow("o-1", "u-1", "QANTAS", "GYG", "1000", "2000",
			"2.25", "2", "-11.1111", "desc", "open", now, now.Add(time.Hour), nil))

	list, err := repo.ListOpen(context.Background(), ListFilter{FromProgram: models.ProgramQantas, Limit: 20})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "desc", list[0].Description)
	assert.Nil(t, list[0].ClosedAt)
}

func TestListByCreator_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`WHERE\s+creator_id`).WillReturnError(errors.New("timeout"))

	_, err := repo.ListByCreator(context.Background(), "u-1", 10)
	assert.ErrorContains(t, err, "db error: timeout")
}
