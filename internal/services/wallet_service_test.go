package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func newWalletServiceForTest(t *testing.T) (*WalletService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	service := NewWalletService(NewLedgerService(db), testWalletConfig())
	return service, mock, func() { db.Close() }
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := context.WithValue(req.Context(), "userID", "1")
	return req.WithContext(ctx)
}

func TestWalletService_GetBalance(t *testing.T) {
	service, mock, done := newWalletServiceForTest(t)
	defer done()

	t.Run("returns balance", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(42000))

		w := httptest.NewRecorder()
		service.GetBalance(w, authedRequest(http.MethodGet, "/wallet/balance", ""))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "42000")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.GetBalance(w, httptest.NewRequest(http.MethodGet, "/wallet/balance", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestWalletService_ListTransactions(t *testing.T) {
	service, mock, done := newWalletServiceForTest(t)
	defer done()

	t.Run("returns history", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("FROM payment_transactions").
			WithArgs(1, 20).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "transaction_id", "user_id", "type", "amount", "balance_after",
				"status", "payment_method", "external_reference_id", "description",
				"completed_at", "created_at",
			}).AddRow(1, "uuid-1", 1, "DEPOSIT", 50000, 50000, "COMPLETED", "BANK_TRANSFER", "", "Deposit request 3 approved", now, now))

		w := httptest.NewRecorder()
		service.ListTransactions(w, authedRequest(http.MethodGet, "/wallet/transactions", ""))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"count":1`)
	})

	t.Run("limit above maximum rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.ListTransactions(w, authedRequest(http.MethodGet, "/wallet/transactions?limit=500", ""))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWalletService_Withdraw(t *testing.T) {
	service, mock, done := newWalletServiceForTest(t)
	defer done()

	body := `{"amount":30000,"bankName":"KB","bankAccount":"110-123-456789","holderName":"Kim Minsu"}`

	t.Run("debits the wallet", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(50000))
		mock.ExpectExec("UPDATE users").
			WithArgs(int64(20000), sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("INSERT INTO payment_transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
		mock.ExpectCommit()

		w := httptest.NewRecorder()
		service.Withdraw(w, authedRequest(http.MethodPost, "/wallet/withdrawals", body))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(1000))
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		service.Withdraw(w, authedRequest(http.MethodPost, "/wallet/withdrawals", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Insufficient balance")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing bank details rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.Withdraw(w, authedRequest(http.MethodPost, "/wallet/withdrawals", `{"amount":30000}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
