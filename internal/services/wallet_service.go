package services

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/itemlink/backend/internal/config"
	"github.com/itemlink/backend/internal/models"
)

// WalletService is the HTTP surface over the ledger: balance enquiry,
// transaction history, and mileage withdrawals.
type WalletService struct {
	ledger    *LedgerService
	cfg       *config.WalletConfig
	validator *ValidationHelper
}

func NewWalletService(ledger *LedgerService, cfg *config.WalletConfig) *WalletService {
	return &WalletService{
		ledger:    ledger,
		cfg:       cfg,
		validator: NewValidationHelper(),
	}
}

// GetBalance returns the caller's mileage balance
// @Summary Get wallet balance
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{balance=int64}
// @Failure 401 {object} ErrorResponse
// @Router /wallet/balance [get]
func (s *WalletService) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := s.ledger.FetchBalance(userID)
	if err != nil {
		log.Printf("[WALLET] Balance fetch failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch balance", HTTPStatus(err), nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

// ListTransactions returns the caller's payment history
// @Summary List wallet transactions
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of rows (default: 20, max: 100)"
// @Success 200 {object} object{transactions=[]models.PaymentTransaction,count=int}
// @Router /wallet/transactions [get]
func (s *WalletService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Limit int `validate:"omitempty,min=1,max=100"`
	}
	req.Limit = 20

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			req.Limit = l
		}
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	transactions, err := s.ledger.FetchTransactions(userID, req.Limit)
	if err != nil {
		log.Printf("[WALLET] Transaction fetch failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// Withdraw debits mileage from the caller's balance
// @Summary Request a mileage withdrawal
// @Description Debit the wallet; fails when the balance is insufficient
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,bankName=string,bankAccount=string,holderName=string} true "Withdrawal request"
// @Success 201 {object} object{success=bool,transaction=models.PaymentTransaction}
// @Failure 400 {object} ErrorResponse
// @Router /wallet/withdrawals [post]
func (s *WalletService) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount      int64  `json:"amount" validate:"required,gt=0"`
		BankName    string `json:"bankName" validate:"required,max=30"`
		BankAccount string `json:"bankAccount" validate:"required,max=30"`
		HolderName  string `json:"holderName" validate:"required,max=50"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	pt, err := s.ledger.Debit(LedgerEntry{
		UserID:        userID,
		Amount:        req.Amount,
		PaymentMethod: models.PaymentMethodBankTransfer,
		Description:   "Mileage withdrawal",
		Metadata: models.Metadata{
			"bank_name":    req.BankName,
			"bank_account": req.BankAccount,
			"holder_name":  req.HolderName,
		},
	})
	if errors.Is(err, ErrInsufficientBalance) {
		SendErrorResponse(w, "Insufficient balance", http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		log.Printf("[WALLET] Withdrawal failed for user %d: %v", userID, err)
		SendErrorResponse(w, err.Error(), HTTPStatus(err), nil)
		return
	}

	log.Printf("[WALLET] User %d withdrew %d", userID, req.Amount)
	SendJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"transaction": pt,
	})
}
