package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestLedgerService_Credit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("successful credit", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT balance FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(5000))

		mock.ExpectExec("UPDATE users").
			WithArgs(int64(55000), sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectQuery("INSERT INTO payment_transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

		mock.ExpectCommit()

		pt, err := service.Credit(LedgerEntry{
			UserID:        1,
			Amount:        50000,
			PaymentMethod: "BANK_TRANSFER",
			Description:   "Deposit request 3 approved",
		})
		assert.NoError(t, err)
		assert.Equal(t, 7, pt.ID)
		assert.Equal(t, int64(55000), pt.BalanceAfter)
		assert.Equal(t, "DEPOSIT", pt.Type)
		assert.Equal(t, "COMPLETED", pt.Status)
		assert.NotEmpty(t, pt.TransactionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := service.Credit(LedgerEntry{UserID: 1, Amount: 0})
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT balance FROM users").
			WithArgs(99).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))

		mock.ExpectRollback()

		_, err := service.Credit(LedgerEntry{UserID: 99, Amount: 1000})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Debit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("successful debit", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT balance FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(5000))

		mock.ExpectExec("UPDATE users").
			WithArgs(int64(2000), sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectQuery("INSERT INTO payment_transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))

		mock.ExpectCommit()

		pt, err := service.Debit(LedgerEntry{
			UserID:        1,
			Amount:        3000,
			PaymentMethod: "BANK_TRANSFER",
			Description:   "Mileage withdrawal",
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(2000), pt.BalanceAfter)
		assert.Equal(t, "WITHDRAWAL", pt.Type)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT balance FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(2000))

		mock.ExpectRollback()

		_, err := service.Debit(LedgerEntry{UserID: 1, Amount: 3000})
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("balance never goes negative on exact spend", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT balance FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(3000))

		mock.ExpectExec("UPDATE users").
			WithArgs(int64(0), sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectQuery("INSERT INTO payment_transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

		mock.ExpectCommit()

		pt, err := service.Debit(LedgerEntry{UserID: 1, Amount: 3000})
		assert.NoError(t, err)
		assert.Equal(t, int64(0), pt.BalanceAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_FetchBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("existing user", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(42000))

		balance, err := service.FetchBalance(1)
		assert.NoError(t, err)
		assert.Equal(t, int64(42000), balance)
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance FROM users").
			WithArgs(404).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))

		_, err := service.FetchBalance(404)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
