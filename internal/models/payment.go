package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// PaymentTransaction is an immutable ledger entry. One row is appended per
// credited or debited event; after COMPLETED it is never mutated.
type PaymentTransaction struct {
	ID                  int        `json:"id" db:"id"`
	TransactionID       string     `json:"transaction_id" db:"transaction_id"`
	UserID              int        `json:"user_id" db:"user_id"`
	Type                string     `json:"type" db:"type"` // DEPOSIT or WITHDRAWAL
	Amount              int64      `json:"amount" db:"amount"`
	BalanceAfter        int64      `json:"balance_after" db:"balance_after"`
	Status              string     `json:"status" db:"status"`
	PaymentMethod       string     `json:"payment_method" db:"payment_method"`
	ExternalReferenceID string     `json:"external_reference_id,omitempty" db:"external_reference_id"`
	Description         string     `json:"description,omitempty" db:"description"`
	Metadata            Metadata   `json:"metadata,omitempty" db:"metadata"`
	CompletedAt         *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
}

// PaymentTransaction type
const (
	PaymentTypeDeposit    = "DEPOSIT"
	PaymentTypeWithdrawal = "WITHDRAWAL"
)

// PaymentTransaction status
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// Payment methods
const (
	PaymentMethodBankTransfer = "BANK_TRANSFER"
	PaymentMethodAdminManual  = "ADMIN_MANUAL"
	PaymentMethodWebhook      = "PAYACTION_WEBHOOK"
)

// Metadata type for JSONB fields
type Metadata map[string]any

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}
