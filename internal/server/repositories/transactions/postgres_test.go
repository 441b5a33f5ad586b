package transactions

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

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestNewID_Sortable(t *testing.T) {
	a := NewID()
	time.Sleep(2 * time.Millisecond)
	b := NewID()
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+transactions`).
		WithArgs(sqlmock.AnyArg(), "u-1", models.TransactionConversion, models.ProgramQantas, models.ProgramGYG,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), models.TransactionCompleted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx := &models.Transaction{
		UserID: "u-1", Kind: models.TransactionConversion,
		FromProgram: models.ProgramQantas, ToProgram: models.ProgramGYG,
		AmountFrom: decimal.NewFromInt(1000), AmountTo: decimal.NewFromInt(2250),
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), tx))
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, models.TransactionCompleted, tx.Status)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+transactions`).WillReturnError(errors.New("fk violation"))

	err := repo.Create(context.Background(), &models.Transaction{UserID: "u-x"})
	assert.ErrorContains(t, err, "db error: fk violation")
}

func TestCreateTrade(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+trade_transactions`).
		WithArgs(sqlmock.AnyArg(), "o-1", "seller", "buyer", "sw1", "sw2", "bw1", "bw2",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tt := &models.TradeTransaction{
		OfferID: "o-1", SellerID: "seller", BuyerID: "buyer",
		SellerFromWalletID: "sw1", SellerToWalletID: "sw2", BuyerFromWalletID: "bw1", BuyerToWalletID: "bw2",
	}
	require.NoError(t, repo.CreateTrade(context.Background(), tt))
	assert.NotEmpty(t, tt.ID)
}

func TestListByUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	cols := []string{"id", "user_id", "kind", "from_program", "to_program", "amount_from", "amount_to",
		"fee_applied", "status", "created_at"}
	mock.ExpectQuery(`(?s)FROM\s+transactions\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC.*LIMIT\s+\$2`).
		WithArgs("u-1", 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("01J", "u-1", "trade_sell", "QANTAS", "GYG", "100", "50", "1.5", "completed", time.Now()))

	list, err := repo.ListByUser(context.Background(), "u-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.TransactionTradeSell, list[0].Kind)
	assert.Equal(t, "1.5", list[0].FeeApplied.String())
}

func TestGetTradeByOffer_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+trade_transactions`).WithArgs("o-9").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetTradeByOffer(context.Background(), "o-9")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}
