package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/itemlink/backend/internal/config"
	"github.com/itemlink/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func bankdaClientFor(serverURL string) *BankdaClient {
	return NewBankdaClient(&config.GatewayConfig{
		BankdaURL:     serverURL,
		BankdaToken:   "test-token",
		BankdaAccount: "110-123-456789",
		Timeout:       5 * time.Second,
	})
}

func TestBankdaClient_FetchTransactions(t *testing.T) {
	from := time.Date(2026, 8, 23, 0, 0, 0, 0, KST)
	to := time.Date(2026, 8, 30, 0, 0, 0, 0, KST)

	t.Run("maps provider records", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "110-123-456789", r.FormValue("account"))
			assert.Equal(t, "20260823", r.FormValue("datefrom"))
			assert.Equal(t, "20260830", r.FormValue("dateto"))
			assert.Equal(t, "test-token", r.FormValue("access_token"))

			w.Write([]byte(`{"record":[
				{"bkdate":"20260829","bktime":"140500","bkinput":"50,000","bkoutput":"","bkjukyo":"1,250,000","bkcontent":"KIM MINSU","bketc":"transfer"},
				{"bkdate":"20260829","bktime":"90210","bkinput":"","bkoutput":"30000","bkjukyo":"1,200,000","bkcontent":"PAYOUT","bketc":""}
			]}`))
		}))
		defer server.Close()

		records, err := bankdaClientFor(server.URL).FetchTransactions(context.Background(), from, to)
		assert.NoError(t, err)
		assert.Len(t, records, 2)

		assert.Equal(t, models.BankDirectionDeposit, records[0].Direction)
		assert.Equal(t, float64(50000), records[0].Amount)
		assert.Equal(t, "KIM MINSU", records[0].DepositorName)
		assert.Equal(t, float64(1250000), records[0].Balance)
		assert.Equal(t, time.Date(2026, 8, 29, 14, 5, 0, 0, KST), records[0].DateTime.In(KST))

		assert.Equal(t, models.BankDirectionWithdrawal, records[1].Direction)
		assert.Equal(t, float64(30000), records[1].Amount)
		// Short clock strings are zero-padded before parsing.
		assert.Equal(t, time.Date(2026, 8, 29, 9, 2, 10, 0, KST), records[1].DateTime.In(KST))
	})

	t.Run("malformed payload yields empty slice", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>maintenance</html>`))
		}))
		defer server.Close()

		records, err := bankdaClientFor(server.URL).FetchTransactions(context.Background(), from, to)
		assert.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("unparseable record is skipped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"record":[
				{"bkdate":"not-a-date","bktime":"","bkinput":"1000","bkoutput":"","bkjukyo":"","bkcontent":"X","bketc":""},
				{"bkdate":"20260829","bktime":"140500","bkinput":"50000","bkoutput":"","bkjukyo":"","bkcontent":"KIM","bketc":""}
			]}`))
		}))
		defer server.Close()

		records, err := bankdaClientFor(server.URL).FetchTransactions(context.Background(), from, to)
		assert.NoError(t, err)
		assert.Len(t, records, 1)
		assert.Equal(t, "KIM", records[0].DepositorName)
	})

	t.Run("non-OK status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := bankdaClientFor(server.URL).FetchTransactions(context.Background(), from, to)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})
}

func TestParseBankdaDateTime(t *testing.T) {
	t.Run("full timestamp", func(t *testing.T) {
		dt, err := ParseBankdaDateTime("20260829", "140500")
		assert.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 29, 14, 5, 0, 0, KST), dt)
	})

	t.Run("leading zeros restored", func(t *testing.T) {
		dt, err := ParseBankdaDateTime("20260829", "9")
		assert.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 9, 0, KST), dt)
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := ParseBankdaDateTime("2026-08-29", "140500")
		assert.Error(t, err)
	})
}
