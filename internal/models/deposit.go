package models

import "time"

// DepositRequest is a user's claim of having made a bank transfer to the
// platform account. It stays PENDING until reconciliation or an admin
// approves it (terminal, credits the ledger exactly once) or an admin
// rejects it (terminal, requires a note).
type DepositRequest struct {
	ID              int        `json:"id" db:"id"`
	UserID          int        `json:"user_id" db:"user_id"`
	Amount          int64      `json:"amount" db:"amount"` // won
	DepositorName   string     `json:"depositor_name" db:"depositor_name"`
	DepositDate     time.Time  `json:"deposit_date" db:"deposit_date"`
	ReceiptImage    string     `json:"receipt_image,omitempty" db:"receipt_image"`
	Status          string     `json:"status" db:"status"`
	AutoMatched     bool       `json:"auto_matched" db:"auto_matched"`
	ExternalOrderID string     `json:"external_order_id,omitempty" db:"external_order_id"`
	ProcessedBy     *int       `json:"processed_by,omitempty" db:"processed_by"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	AdminNote       string     `json:"admin_note,omitempty" db:"admin_note"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// DepositRequest status
const (
	DepositStatusPending  = "PENDING"
	DepositStatusApproved = "APPROVED"
	DepositStatusRejected = "REJECTED"
)

// DepositMatchingLog records one reconciliation attempt for one deposit
// request, matched or not. Append-only.
type DepositMatchingLog struct {
	ID               int        `json:"id" db:"id"`
	DepositRequestID int        `json:"deposit_request_id" db:"deposit_request_id"`
	MatchStatus      string     `json:"match_status" db:"match_status"`
	BankAmount       float64    `json:"bank_amount" db:"bank_amount"`
	BankDepositor    string     `json:"bank_depositor" db:"bank_depositor"`
	BankDate         *time.Time `json:"bank_date,omitempty" db:"bank_date"`
	FailureReason    string     `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// Matching log status
const (
	MatchStatusPending   = "PENDING"
	MatchStatusConfirmed = "CONFIRMED"
	MatchStatusFailed    = "FAILED"
)

// BankTransactionRecord is a row returned by the bank gateway. Never
// persisted; fetched fresh per reconciliation pass.
type BankTransactionRecord struct {
	DateTime      time.Time `json:"date_time"`
	Amount        float64   `json:"amount"` // provider reports decimal strings; kept fractional for tolerance checks
	DepositorName string    `json:"depositor_name"`
	Direction     string    `json:"direction"` // DEPOSIT or WITHDRAWAL
	Description   string    `json:"description"`
	Balance       float64   `json:"balance"`
}

// Bank record direction
const (
	BankDirectionDeposit    = "DEPOSIT"
	BankDirectionWithdrawal = "WITHDRAWAL"
)
