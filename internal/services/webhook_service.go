package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/itemlink/backend/internal/config"
	"github.com/itemlink/backend/internal/models"
)

// WebhookService processes PayAction push notifications. Deliveries are
// at-least-once, so the handler is idempotent: replays of an approved order
// acknowledge without crediting again.
type WebhookService struct {
	deposits *DepositService
	cfg      *config.WebhookConfig
}

func NewWebhookService(deposits *DepositService, cfg *config.WebhookConfig) *WebhookService {
	return &WebhookService{
		deposits: deposits,
		cfg:      cfg,
	}
}

type webhookPayload struct {
	OrderNumber   string  `json:"order_number"`
	Status        string  `json:"status"`         // English status values
	DepositStatus string  `json:"deposit_status"` // localized parallel field; provider sends either
	Amount        float64 `json:"amount"`
	DepositorName string  `json:"orderer_name"`
}

type completionStatus int

const (
	completionUnknown completionStatus = iota
	completionInterim
	completionDone
)

// parseCompletionStatus checks the English field first, then the localized
// one. The provider has been observed sending either.
func parseCompletionStatus(p *webhookPayload) completionStatus {
	switch strings.ToLower(strings.TrimSpace(p.Status)) {
	case "completed", "complete", "success", "done":
		return completionDone
	case "pending", "waiting", "partial":
		return completionInterim
	}

	switch strings.TrimSpace(p.DepositStatus) {
	case "입금완료", "매칭완료":
		return completionDone
	case "입금대기", "부분입금":
		return completionInterim
	}

	return completionUnknown
}

// HandlePayAction receives the payment gateway's deposit notification
// @Summary PayAction webhook
// @Description Process an asynchronous deposit-completion notification
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Webhook-Signature header string false "Hex HMAC-SHA256 of the raw body"
// @Success 200 {object} object{success=bool}
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/payaction [post]
func (s *WebhookService) HandlePayAction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1_048_576))
	if err != nil {
		SendErrorResponse(w, "Failed to read body", http.StatusBadRequest, nil)
		return
	}

	if err := s.verifySignature(r.Header.Get("X-Webhook-Signature"), body); err != nil {
		log.Printf("[WEBHOOK] Signature rejected: %v", err)
		SendErrorResponse(w, "Invalid signature", http.StatusUnauthorized, nil)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		SendErrorResponse(w, "Invalid payload", http.StatusBadRequest, nil)
		return
	}

	if payload.OrderNumber == "" {
		SendErrorResponse(w, "order_number is required", http.StatusBadRequest, nil)
		return
	}

	dep, err := s.deposits.GetByOrderNumber(payload.OrderNumber)
	if err != nil {
		log.Printf("[WEBHOOK] Unknown order %s", payload.OrderNumber)
		SendErrorResponse(w, "Unknown order", http.StatusNotFound, nil)
		return
	}

	if dep.Status == models.DepositStatusApproved {
		SendJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "already processed",
		})
		return
	}

	if parseCompletionStatus(&payload) != completionDone {
		// Interim states are acknowledged, not credited.
		log.Printf("[WEBHOOK] Order %s not complete yet (status=%q deposit_status=%q)",
			payload.OrderNumber, payload.Status, payload.DepositStatus)
		SendJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	_, err = s.deposits.ApproveAndCredit(dep.ID, ApprovalContext{
		AutoMatched:   true,
		PaymentMethod: models.PaymentMethodWebhook,
		ExternalRef:   payload.OrderNumber,
		BankAmount:    payload.Amount,
		BankDepositor: payload.DepositorName,
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		SendJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "already processed",
		})
		return
	}
	if err != nil {
		// 5xx so the provider's retry mechanism redelivers.
		log.Printf("[WEBHOOK] Failed to credit order %s: %v", payload.OrderNumber, err)
		SendErrorResponse(w, "Failed to process webhook", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[WEBHOOK] Order %s credited (deposit request %d)", payload.OrderNumber, dep.ID)
	SendJSON(w, http.StatusOK, map[string]any{"success": true})
}

// verifySignature checks the hex HMAC-SHA256 of the raw body. A missing
// header is accepted unless RequireSignature is set; a present-but-wrong
// header is always rejected.
func (s *WebhookService) verifySignature(signature string, body []byte) error {
	if signature == "" {
		if s.cfg.RequireSignature {
			return ErrInvalidSignature
		}
		return nil
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}

	return nil
}
