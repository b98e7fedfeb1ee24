package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/itemlink/backend/internal/config"
)

// maxOrderNumberLen is the provider's hard limit on order_number.
const maxOrderNumberLen = 22

// PayActionClient pre-registers expected payments with the PayAction
// gateway. Registration is best-effort: callers create the deposit claim
// regardless and keep the failure reason for visibility.
type PayActionClient struct {
	cfg        *config.GatewayConfig
	httpClient *http.Client
}

func NewPayActionClient(cfg *config.GatewayConfig) *PayActionClient {
	return &PayActionClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type payactionRequest struct {
	OrderNumber string `json:"order_number"`
	Amount      int64  `json:"amount"`
	OrderName   string `json:"orderer_name"`
	OrderDate   string `json:"order_date"` // ISO8601 with +09:00 offset
	Phone       string `json:"orderer_phone_number,omitempty"`
	Email       string `json:"orderer_email,omitempty"`
}

type payactionResponse struct {
	Status   string          `json:"status"` // "success" | "error"
	Response json.RawMessage `json:"response"`
}

// RegisterOrder registers one expected payment and returns the correlation
// id used to match the provider's webhook back to the deposit claim.
func (c *PayActionClient) RegisterOrder(ctx context.Context, order OrderRegistration) (*OrderResult, error) {
	orderNumber := BuildOrderNumber(order.DepositRequestID, time.Now())

	body := payactionRequest{
		OrderNumber: orderNumber,
		Amount:      order.Amount,
		OrderName:   order.DepositorName,
		OrderDate:   order.ExpectedDate.In(KST).Format("2006-01-02T15:04:05+09:00"),
		Phone:       NormalizePhone(order.Phone),
		Email:       order.Email,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PayActionURL, bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.PayActionAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[PAYACTION] Register request failed for order %s: %v", orderNumber, err)
		return nil, fmt.Errorf("payaction request: %w", err)
	}
	defer resp.Body.Close()

	var result payactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("payaction response decode: %w", err)
	}

	if resp.StatusCode != http.StatusOK || result.Status != "success" {
		log.Printf("[PAYACTION] Registration rejected for order %s: status=%d body=%s", orderNumber, resp.StatusCode, string(result.Response))
		return nil, fmt.Errorf("payaction registration failed: %s", result.Status)
	}

	log.Printf("[PAYACTION] Registered order %s for deposit request %d", orderNumber, order.DepositRequestID)
	return &OrderResult{OrderNumber: orderNumber}, nil
}

// BuildOrderNumber derives a correlation id from the deposit request id plus
// a base36 timestamp suffix, clamped to the provider's length limit.
func BuildOrderNumber(depositRequestID int, now time.Time) string {
	id := fmt.Sprintf("DR%d-%s", depositRequestID, strconv.FormatInt(now.Unix(), 36))
	if len(id) > maxOrderNumberLen {
		id = id[:maxOrderNumberLen]
	}
	return id
}

// NormalizePhone strips separators and rewrites a leading +82 country code
// to the domestic 0 prefix.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && b.Len() == 0 {
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	if strings.HasPrefix(normalized, "+82") {
		normalized = "0" + normalized[3:]
	} else if strings.HasPrefix(normalized, "82") && len(normalized) > 9 {
		normalized = "0" + normalized[2:]
	}
	return normalized
}
