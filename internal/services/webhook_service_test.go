package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/itemlink/backend/internal/config"
	"github.com/itemlink/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func newWebhookServiceForTest(t *testing.T, cfg *config.WebhookConfig) (*WebhookService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	ledger := NewLedgerService(db)
	deposits := NewDepositService(db, ledger, nil, testWalletConfig())
	return NewWebhookService(deposits, cfg), mock, func() { db.Close() }
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(service *WebhookService, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payaction", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	w := httptest.NewRecorder()
	service.HandlePayAction(w, req)
	return w
}

func pendingOrderRows(orderNumber string) *sqlmock.Rows {
	now := time.Now()
	return depositRows().AddRow(
		3, 1, int64(50000), "Kim Minsu", now, "", models.DepositStatusPending,
		false, orderNumber, nil, nil, "", now, now)
}

func TestWebhookService_HandlePayAction(t *testing.T) {
	cfg := &config.WebhookConfig{Secret: "test-secret"}

	t.Run("completed notification credits the claim", func(t *testing.T) {
		service, mock, done := newWebhookServiceForTest(t, cfg)
		defer done()

		body := `{"order_number":"DR3-abc","status":"completed","amount":50000,"orderer_name":"Kim Minsu"}`

		mock.ExpectQuery("FROM deposit_requests WHERE external_order_id").
			WithArgs("DR3-abc").
			WillReturnRows(pendingOrderRows("DR3-abc"))

		expectApproveAndCredit(mock, 3, 1, 50000)

		w := postWebhook(service, body, sign(cfg.Secret, body))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("localized completion status also credits", func(t *testing.T) {
		service, mock, done := newWebhookServiceForTest(t, cfg)
		defer done()

		body := `{"order_number":"DR3-abc","deposit_status":"입금완료","amount":50000}`

		mock.ExpectQuery("FROM deposit_requests WHERE external_order_id").
			WithArgs("DR3-abc").
			WillReturnRows(pendingOrderRows("DR3-abc"))

		expectApproveAndCredit(mock, 3, 1, 50000)

		w := postWebhook(service, body, sign(cfg.Secret, body))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("interim status acknowledges without crediting", func(t *testing.T) {
		service, mock, done := newWebhookServiceForTest(t, cfg)
		defer done()

		body := `{"order_number":"DR3-abc","status":"pending","amount":50000}`

		mock.ExpectQuery("FROM deposit_requests WHERE external_order_id").
			WithArgs("DR3-abc").
			WillReturnRows(pendingOrderRows("DR3-abc"))

		w := postWebhook(service, body, sign(cfg.Secret, body))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replay of an approved order acknowledges without crediting", func(t *testing.T) {
		service, mock, done := newWebhookServiceForTest(t, cfg)
		defer done()

		body := `{"order_number":"DR3-abc","status":"completed","amount":50000}`

		now := time.Now()
		mock.ExpectQuery("FROM deposit_requests WHERE external_order_id").
			WithArgs("DR3-abc").
			WillReturnRows(depositRows().AddRow(
				3, 1, int64(50000), "Kim Minsu", now, "", models.DepositStatusApproved,
				true, "DR3-abc", nil, nil, "", now, now))

		w := postWebhook(service, body, sign(cfg.Secret, body))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "already processed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("race with reconciliation still acknowledges", func(t *testing.T) {
		service, mock, done := newWebhookServiceForTest(t, cfg)
		defer done()

		body := `{"order_number":"DR3-abc","status":"completed","amount":50000}`

		mock.ExpectQuery("FROM deposit_requests WHERE external_order_id").
			WithArgs("DR3-abc").
			WillReturnRows(pendingOrderRows("DR3-abc"))

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE deposit_requests").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount"}))
		mock.ExpectQuery("SELECT status FROM deposit_requests").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.DepositStatusApproved))
		mock.ExpectRollback()

		w := postWebhook(service, body, sign(cfg.Secret, body))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "already processed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown order", func(t *testing.T) {
		service, mock, done := newWebhookServiceForTest(t, cfg)
		defer done()

		body := `{"order_number":"DR404-x","status":"completed"}`

		mock.ExpectQuery("FROM deposit_requests WHERE external_order_id").
			WithArgs("DR404-x").
			WillReturnRows(depositRows())

		w := postWebhook(service, body, sign(cfg.Secret, body))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credit failure returns 500 for redelivery", func(t *testing.T) {
		service, mock, done := newWebhookServiceForTest(t, cfg)
		defer done()

		body := `{"order_number":"DR3-abc","status":"completed","amount":50000}`

		mock.ExpectQuery("FROM deposit_requests WHERE external_order_id").
			WithArgs("DR3-abc").
			WillReturnRows(pendingOrderRows("DR3-abc"))

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE deposit_requests").
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		w := postWebhook(service, body, sign(cfg.Secret, body))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing order number", func(t *testing.T) {
		service, _, done := newWebhookServiceForTest(t, cfg)
		defer done()

		body := `{"status":"completed"}`
		w := postWebhook(service, body, sign(cfg.Secret, body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWebhookService_Signature(t *testing.T) {
	t.Run("wrong signature rejected", func(t *testing.T) {
		service, _, done := newWebhookServiceForTest(t, &config.WebhookConfig{Secret: "test-secret"})
		defer done()

		body := `{"order_number":"DR3-abc","status":"completed"}`
		w := postWebhook(service, body, "deadbeef")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("absent signature accepted when not required", func(t *testing.T) {
		service, mock, done := newWebhookServiceForTest(t, &config.WebhookConfig{Secret: "test-secret"})
		defer done()

		body := `{"order_number":"DR3-abc","status":"pending"}`

		mock.ExpectQuery("FROM deposit_requests WHERE external_order_id").
			WithArgs("DR3-abc").
			WillReturnRows(pendingOrderRows("DR3-abc"))

		w := postWebhook(service, body, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("absent signature rejected in strict mode", func(t *testing.T) {
		service, _, done := newWebhookServiceForTest(t, &config.WebhookConfig{
			Secret:           "test-secret",
			RequireSignature: true,
		})
		defer done()

		body := `{"order_number":"DR3-abc","status":"completed"}`
		w := postWebhook(service, body, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
