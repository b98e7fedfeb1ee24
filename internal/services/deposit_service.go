package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/itemlink/backend/internal/config"
	"github.com/itemlink/backend/internal/gateway"
	"github.com/itemlink/backend/internal/models"
)

// DepositService owns deposit_requests and the approve/reject lifecycle.
// Approval is terminal and fires the ledger credit exactly once: the
// status row-claim and the credit share one database transaction.
type DepositService struct {
	db        *sql.DB
	ledger    *LedgerService
	registrar gateway.OrderRegistrar
	cfg       *config.WalletConfig
	validator *ValidationHelper
}

func NewDepositService(db *sql.DB, ledger *LedgerService, registrar gateway.OrderRegistrar, cfg *config.WalletConfig) *DepositService {
	return &DepositService{
		db:        db,
		ledger:    ledger,
		registrar: registrar,
		cfg:       cfg,
		validator: NewValidationHelper(),
	}
}

// CreateDepositInput is the store-level claim payload.
type CreateDepositInput struct {
	UserID        int
	Amount        int64
	DepositorName string
	DepositDate   time.Time
	ReceiptImage  string
	Phone         string
	Email         string
}

// CreateResult reports the stored claim plus the outcome of the best-effort
// provider registration.
type CreateResult struct {
	Deposit           *models.DepositRequest `json:"deposit"`
	OrderRegistered   bool                   `json:"orderRegistered"`
	RegistrationError string                 `json:"registrationError,omitempty"`
}

// Create validates and stores a PENDING claim, then registers the expected
// payment with the provider. Registration failure never aborts the claim.
func (s *DepositService) Create(ctx context.Context, input CreateDepositInput) (*CreateResult, error) {
	if input.Amount < s.cfg.MinDepositAmount || input.Amount > s.cfg.MaxDepositAmount {
		return nil, fmt.Errorf("%w: amount %d outside [%d, %d]",
			ErrValidation, input.Amount, s.cfg.MinDepositAmount, s.cfg.MaxDepositAmount)
	}
	if strings.TrimSpace(input.DepositorName) == "" {
		return nil, fmt.Errorf("%w: depositor name is required", ErrValidation)
	}
	if input.DepositDate.IsZero() {
		return nil, fmt.Errorf("%w: deposit date is required", ErrValidation)
	}

	dep := &models.DepositRequest{
		UserID:        input.UserID,
		Amount:        input.Amount,
		DepositorName: strings.TrimSpace(input.DepositorName),
		DepositDate:   input.DepositDate,
		ReceiptImage:  input.ReceiptImage,
		Status:        models.DepositStatusPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	err := s.db.QueryRow(`
		INSERT INTO deposit_requests
		(user_id, amount, depositor_name, deposit_date, receipt_image, status, auto_matched, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)
		RETURNING id`,
		dep.UserID, dep.Amount, dep.DepositorName, dep.DepositDate, dep.ReceiptImage,
		dep.Status, dep.CreatedAt, dep.UpdatedAt,
	).Scan(&dep.ID)
	if err != nil {
		return nil, err
	}

	result := &CreateResult{Deposit: dep}

	if s.registrar == nil {
		return result, nil
	}

	order, regErr := s.registrar.RegisterOrder(ctx, gateway.OrderRegistration{
		DepositRequestID: dep.ID,
		Amount:           dep.Amount,
		DepositorName:    dep.DepositorName,
		ExpectedDate:     dep.DepositDate,
		Phone:            input.Phone,
		Email:            input.Email,
	})
	if regErr != nil {
		// The claim stands on its own; reconciliation will still find it.
		log.Printf("[DEPOSIT] Order registration failed for request %d: %v", dep.ID, regErr)
		result.RegistrationError = regErr.Error()
		return result, nil
	}

	if _, err := s.db.Exec(`
		UPDATE deposit_requests SET external_order_id = $1, updated_at = $2 WHERE id = $3`,
		order.OrderNumber, time.Now(), dep.ID); err != nil {
		log.Printf("[DEPOSIT] Failed to store order number for request %d: %v", dep.ID, err)
		result.RegistrationError = err.Error()
		return result, nil
	}

	dep.ExternalOrderID = order.OrderNumber
	result.OrderRegistered = true
	return result, nil
}

// ApprovalContext describes who or what approved the claim and the matched
// bank details for the audit log.
type ApprovalContext struct {
	ProcessedBy   *int
	AdminNote     string
	AutoMatched   bool
	PaymentMethod string
	ExternalRef   string
	BankAmount    float64
	BankDepositor string
	BankDate      *time.Time
}

// ApproveAndCredit flips PENDING to APPROVED, credits the ledger, and
// appends a CONFIRMED matching-log row, all in one database transaction.
// The status row-claim is the first statement inside the transaction, so a
// concurrent webhook and scheduler pass cannot both credit: the loser sees
// zero rows claimed and reports ErrAlreadyProcessed.
func (s *DepositService) ApproveAndCredit(id int, ac ApprovalContext) (*models.PaymentTransaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	var userID int
	var amount int64
	err = tx.QueryRow(`
		UPDATE deposit_requests
		SET status = $1, auto_matched = $2, processed_by = $3, processed_at = $4, admin_note = $5, updated_at = $4
		WHERE id = $6 AND status = $7
		RETURNING user_id, amount`,
		models.DepositStatusApproved, ac.AutoMatched, ac.ProcessedBy, now, ac.AdminNote,
		id, models.DepositStatusPending,
	).Scan(&userID, &amount)

	if err == sql.ErrNoRows {
		return nil, s.classifyClaimMiss(id)
	}
	if err != nil {
		return nil, err
	}

	method := ac.PaymentMethod
	if method == "" {
		method = models.PaymentMethodBankTransfer
	}

	pt, err := s.ledger.CreditTx(tx, LedgerEntry{
		UserID:        userID,
		Amount:        amount,
		PaymentMethod: method,
		ExternalRef:   ac.ExternalRef,
		Description:   fmt.Sprintf("Deposit request %d approved", id),
		Metadata:      models.Metadata{"deposit_request_id": id},
	})
	if err != nil {
		return nil, err
	}

	if err := insertMatchingLog(tx, id, models.MatchStatusConfirmed, ac.BankAmount, ac.BankDepositor, ac.BankDate, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[DEPOSIT] Request %d approved, user %d credited %d", id, userID, amount)
	return pt, nil
}

// classifyClaimMiss explains a zero-row claim: already approved, terminal
// rejection, or no such request.
func (s *DepositService) classifyClaimMiss(id int) error {
	var status string
	err := s.db.QueryRow(`SELECT status FROM deposit_requests WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: deposit request %d", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	switch status {
	case models.DepositStatusApproved:
		return fmt.Errorf("%w: deposit request %d", ErrAlreadyProcessed, id)
	case models.DepositStatusRejected:
		return fmt.Errorf("%w: deposit request %d is rejected", ErrInvalidStateTransition, id)
	default:
		return fmt.Errorf("deposit request %d in unexpected state %s", id, status)
	}
}

// Reject terminally rejects a PENDING claim. The note is mandatory.
func (s *DepositService) Reject(id, processedBy int, adminNote string) error {
	if strings.TrimSpace(adminNote) == "" {
		return fmt.Errorf("%w: rejection requires a note", ErrValidation)
	}

	now := time.Now()
	result, err := s.db.Exec(`
		UPDATE deposit_requests
		SET status = $1, processed_by = $2, processed_at = $3, admin_note = $4, updated_at = $3
		WHERE id = $5 AND status = $6`,
		models.DepositStatusRejected, processedBy, now, adminNote,
		id, models.DepositStatusPending)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return s.classifyClaimMiss(id)
	}

	log.Printf("[DEPOSIT] Request %d rejected by admin %d", id, processedBy)
	return nil
}

const depositColumns = `id, user_id, amount, depositor_name, deposit_date,
	COALESCE(receipt_image, ''), status, auto_matched, COALESCE(external_order_id, ''),
	processed_by, processed_at, COALESCE(admin_note, ''), created_at, updated_at`

func scanDeposit(row interface{ Scan(...any) error }) (*models.DepositRequest, error) {
	var dep models.DepositRequest
	err := row.Scan(
		&dep.ID, &dep.UserID, &dep.Amount, &dep.DepositorName, &dep.DepositDate,
		&dep.ReceiptImage, &dep.Status, &dep.AutoMatched, &dep.ExternalOrderID,
		&dep.ProcessedBy, &dep.ProcessedAt, &dep.AdminNote, &dep.CreatedAt, &dep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &dep, nil
}

// GetByID fetches one claim.
func (s *DepositService) GetByID(id int) (*models.DepositRequest, error) {
	dep, err := scanDeposit(s.db.QueryRow(
		`SELECT `+depositColumns+` FROM deposit_requests WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: deposit request %d", ErrNotFound, id)
	}
	return dep, err
}

// GetByOrderNumber resolves a provider correlation id back to its claim.
func (s *DepositService) GetByOrderNumber(orderNumber string) (*models.DepositRequest, error) {
	dep, err := scanDeposit(s.db.QueryRow(
		`SELECT `+depositColumns+` FROM deposit_requests WHERE external_order_id = $1`, orderNumber))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderNumber)
	}
	return dep, err
}

// ListPendingUnmatched returns claims awaiting reconciliation, oldest first
// so earlier claims get first chance at ambiguous matches.
func (s *DepositService) ListPendingUnmatched() ([]models.DepositRequest, error) {
	rows, err := s.db.Query(`
		SELECT ` + depositColumns + `
		FROM deposit_requests
		WHERE status = 'PENDING' AND auto_matched = false
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDeposits(rows)
}

// ListByUser returns the owner's claims, newest first.
func (s *DepositService) ListByUser(userID, limit int) ([]models.DepositRequest, error) {
	rows, err := s.db.Query(`
		SELECT `+depositColumns+`
		FROM deposit_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDeposits(rows)
}

func collectDeposits(rows *sql.Rows) ([]models.DepositRequest, error) {
	deposits := []models.DepositRequest{}
	for rows.Next() {
		dep, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, *dep)
	}
	return deposits, rows.Err()
}

func insertMatchingLog(tx *sql.Tx, depositRequestID int, matchStatus string, bankAmount float64, bankDepositor string, bankDate *time.Time, failureReason string) error {
	_, err := tx.Exec(`
		INSERT INTO deposit_matching_logs
		(deposit_request_id, match_status, bank_amount, bank_depositor, bank_date, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		depositRequestID, matchStatus, bankAmount, bankDepositor, bankDate, failureReason, time.Now())
	return err
}

// InsertMatchingLog appends one audit row outside any caller transaction.
func (s *DepositService) InsertMatchingLog(depositRequestID int, matchStatus string, rec *models.BankTransactionRecord, failureReason string) error {
	var bankAmount float64
	var bankDepositor string
	var bankDate *time.Time
	if rec != nil {
		bankAmount = rec.Amount
		bankDepositor = rec.DepositorName
		bankDate = &rec.DateTime
	}
	_, err := s.db.Exec(`
		INSERT INTO deposit_matching_logs
		(deposit_request_id, match_status, bank_amount, bank_depositor, bank_date, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		depositRequestID, matchStatus, bankAmount, bankDepositor, bankDate, failureReason, time.Now())
	return err
}

// HTTP handlers

// CreateDeposit files a new deposit claim for the caller
// @Summary Create a deposit request
// @Description File a claim that a bank transfer was made to the platform account
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,depositorName=string,depositDate=string,receiptImage=string} true "Deposit claim"
// @Success 201 {object} CreateResult
// @Failure 400 {object} ErrorResponse
// @Router /wallet/deposits [post]
func (s *DepositService) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount        int64  `json:"amount" validate:"required,gt=0"`
		DepositorName string `json:"depositorName" validate:"required,min=1,max=50"`
		DepositDate   string `json:"depositDate" validate:"required"`
		ReceiptImage  string `json:"receiptImage"`
		Phone         string `json:"phone"`
		Email         string `json:"email" validate:"omitempty,email"`
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

	depositDate, err := parseDepositDate(req.DepositDate)
	if err != nil {
		SendErrorResponse(w, "Invalid deposit date", http.StatusBadRequest, nil)
		return
	}

	result, err := s.Create(r.Context(), CreateDepositInput{
		UserID:        userID,
		Amount:        req.Amount,
		DepositorName: req.DepositorName,
		DepositDate:   depositDate,
		ReceiptImage:  req.ReceiptImage,
		Phone:         req.Phone,
		Email:         req.Email,
	})
	if err != nil {
		log.Printf("[DEPOSIT] Create failed for user %d: %v", userID, err)
		SendErrorResponse(w, err.Error(), HTTPStatus(err), nil)
		return
	}

	SendJSON(w, http.StatusCreated, result)
}

// ListMyDeposits lists the caller's deposit claims
// @Summary List own deposit requests
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max rows (default 50)"
// @Success 200 {object} object{deposits=[]models.DepositRequest,count=int}
// @Router /wallet/deposits [get]
func (s *DepositService) ListMyDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	deposits, err := s.ListByUser(userID, limit)
	if err != nil {
		log.Printf("[DEPOSIT] List failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch deposit requests", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"deposits": deposits,
		"count":    len(deposits),
	})
}

// GetDeposit fetches one claim; owners see their own, admins see all
// @Summary Get a deposit request
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param depositId path int true "Deposit request ID"
// @Success 200 {object} models.DepositRequest
// @Failure 404 {object} ErrorResponse
// @Router /wallet/deposits/{depositId} [get]
func (s *DepositService) GetDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "depositId"))
	if err != nil {
		SendErrorResponse(w, "Invalid deposit id", http.StatusBadRequest, nil)
		return
	}

	dep, err := s.GetByID(id)
	if err != nil {
		SendErrorResponse(w, "Deposit request not found", HTTPStatus(err), nil)
		return
	}

	role, _ := r.Context().Value("userRole").(string)
	if dep.UserID != userID && role != models.RoleAdmin {
		SendErrorResponse(w, "Deposit request not found", http.StatusNotFound, nil)
		return
	}

	SendJSON(w, http.StatusOK, dep)
}

// ListPendingDeposits lists claims awaiting moderation
// @Summary List pending deposit requests
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{deposits=[]models.DepositRequest,count=int}
// @Router /admin/deposits [get]
func (s *DepositService) ListPendingDeposits(w http.ResponseWriter, r *http.Request) {
	deposits, err := s.ListPendingUnmatched()
	if err != nil {
		log.Printf("[DEPOSIT] Admin list failed: %v", err)
		SendErrorResponse(w, "Failed to fetch deposit requests", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"deposits": deposits,
		"count":    len(deposits),
	})
}

// ApproveDeposit manually approves a claim and credits the ledger
// @Summary Approve a deposit request
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param depositId path int true "Deposit request ID"
// @Param request body object{adminNote=string} false "Optional note"
// @Success 200 {object} object{success=bool,transaction=models.PaymentTransaction}
// @Failure 400 {object} ErrorResponse
// @Router /admin/deposits/{depositId}/approve [post]
func (s *DepositService) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	adminID, ok := callerID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "depositId"))
	if err != nil {
		SendErrorResponse(w, "Invalid deposit id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		AdminNote string `json:"adminNote" validate:"max=500"`
	}
	if r.ContentLength > 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1_048_576))
		if err := dec.Decode(&req); err != nil {
			SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
			return
		}
	}

	pt, err := s.ApproveAndCredit(id, ApprovalContext{
		ProcessedBy:   &adminID,
		AdminNote:     req.AdminNote,
		AutoMatched:   false,
		PaymentMethod: models.PaymentMethodAdminManual,
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		SendJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "already processed",
		})
		return
	}
	if err != nil {
		log.Printf("[DEPOSIT] Admin approve failed for request %d: %v", id, err)
		SendErrorResponse(w, err.Error(), HTTPStatus(err), nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"transaction": pt,
	})
}

// RejectDeposit terminally rejects a claim with a mandatory note
// @Summary Reject a deposit request
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param depositId path int true "Deposit request ID"
// @Param request body object{adminNote=string} true "Reason, required"
// @Success 200 {object} object{success=bool}
// @Failure 400 {object} ErrorResponse
// @Router /admin/deposits/{depositId}/reject [post]
func (s *DepositService) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	adminID, ok := callerID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "depositId"))
	if err != nil {
		SendErrorResponse(w, "Invalid deposit id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		AdminNote string `json:"adminNote" validate:"required,max=500"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1_048_576))
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := s.Reject(id, adminID, req.AdminNote); err != nil {
		log.Printf("[DEPOSIT] Admin reject failed for request %d: %v", id, err)
		SendErrorResponse(w, err.Error(), HTTPStatus(err), nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{"success": true})
}

// parseDepositDate accepts RFC3339 or a bare local datetime.
func parseDepositDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable deposit date %q", ErrValidation, s)
}

// callerID extracts the authenticated user id set by the auth middleware.
func callerID(r *http.Request) (int, bool) {
	raw, ok := r.Context().Value("userID").(string)
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}
