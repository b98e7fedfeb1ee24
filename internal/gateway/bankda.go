package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/itemlink/backend/internal/config"
	"github.com/itemlink/backend/internal/models"
)

// BankdaClient wraps the Bankda account-scraping API. Requests are
// form-encoded; the response is a JSON object with a nested record list
// using the provider's native field names.
type BankdaClient struct {
	cfg        *config.GatewayConfig
	httpClient *http.Client
}

func NewBankdaClient(cfg *config.GatewayConfig) *BankdaClient {
	return &BankdaClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type bankdaResponse struct {
	Record []bankdaRecord `json:"record"`
}

type bankdaRecord struct {
	Date     string `json:"bkdate"`   // YYYYMMDD
	Time     string `json:"bktime"`   // HHMMSS
	Input    string `json:"bkinput"`  // amount in, won
	Output   string `json:"bkoutput"` // amount out, won
	Balance  string `json:"bkjukyo"`
	Name     string `json:"bkcontent"` // counterparty / depositor name
	Memo     string `json:"bketc"`
}

// FetchTransactions returns settled transactions for the date window.
// A missing or malformed record list yields an empty slice; transport and
// non-2xx failures surface as a gateway error the caller retries next pass.
func (c *BankdaClient) FetchTransactions(ctx context.Context, from, to time.Time) ([]models.BankTransactionRecord, error) {
	form := url.Values{}
	form.Set("account", c.cfg.BankdaAccount)
	form.Set("datefrom", from.In(KST).Format("20060102"))
	form.Set("dateto", to.In(KST).Format("20060102"))
	form.Set("access_token", c.cfg.BankdaToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BankdaURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[BANKDA] Request failed: %v", err)
		return nil, fmt.Errorf("bankda request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[BANKDA] Non-OK status: %d", resp.StatusCode)
		return nil, fmt.Errorf("bankda returned status %d", resp.StatusCode)
	}

	var payload bankdaResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		// Provider occasionally returns an HTML error page with status 200.
		log.Printf("[BANKDA] Malformed payload, treating as empty: %v", err)
		return []models.BankTransactionRecord{}, nil
	}

	records := make([]models.BankTransactionRecord, 0, len(payload.Record))
	for _, raw := range payload.Record {
		rec, ok := mapBankdaRecord(raw)
		if !ok {
			log.Printf("[BANKDA] Skipping unparseable record: date=%q time=%q", raw.Date, raw.Time)
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func mapBankdaRecord(raw bankdaRecord) (models.BankTransactionRecord, bool) {
	dt, err := ParseBankdaDateTime(raw.Date, raw.Time)
	if err != nil {
		return models.BankTransactionRecord{}, false
	}

	input := parseWon(raw.Input)
	output := parseWon(raw.Output)

	rec := models.BankTransactionRecord{
		DateTime:      dt,
		DepositorName: strings.TrimSpace(raw.Name),
		Description:   strings.TrimSpace(raw.Memo),
		Balance:       parseWon(raw.Balance),
	}

	if input > 0 {
		rec.Direction = models.BankDirectionDeposit
		rec.Amount = input
	} else {
		rec.Direction = models.BankDirectionWithdrawal
		rec.Amount = output
	}

	return rec, true
}

// ParseBankdaDateTime normalizes the provider's 8-digit date and 6-digit
// time, both local KST, into a time.Time.
func ParseBankdaDateTime(date, clock string) (time.Time, error) {
	if len(clock) < 6 {
		clock = strings.Repeat("0", 6-len(clock)) + clock
	}
	return time.ParseInLocation("20060102150405", date+clock, KST)
}

func parseWon(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return n
}
