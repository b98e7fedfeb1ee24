package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/itemlink/backend/internal/models"
)

// LedgerService owns users.balance. Every mutation goes through Credit or
// Debit (or their Tx variants when composed into a larger atomic unit); a
// direct balance write anywhere else is a bug.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// LedgerEntry describes one balance mutation request.
type LedgerEntry struct {
	UserID        int
	Amount        int64
	PaymentMethod string
	ExternalRef   string
	Description   string
	Metadata      models.Metadata
}

// Credit increments the user's balance and appends one COMPLETED
// payment_transactions row, all inside a single database transaction.
func (s *LedgerService) Credit(entry LedgerEntry) (*models.PaymentTransaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	pt, err := s.CreditTx(tx, entry)
	if err != nil {
		return nil, err
	}

	return pt, tx.Commit()
}

// Debit decrements the user's balance, failing with ErrInsufficientBalance
// when the pre-debit balance is below the amount.
func (s *LedgerService) Debit(entry LedgerEntry) (*models.PaymentTransaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	pt, err := s.DebitTx(tx, entry)
	if err != nil {
		return nil, err
	}

	return pt, tx.Commit()
}

// CreditTx runs the credit inside the caller's transaction so the caller can
// make the credit atomic with its own state transitions.
func (s *LedgerService) CreditTx(tx *sql.Tx, entry LedgerEntry) (*models.PaymentTransaction, error) {
	if entry.Amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, entry.Amount)
	}

	balance, err := s.lockUserBalance(tx, entry.UserID)
	if err != nil {
		return nil, err
	}

	newBalance := balance + entry.Amount
	if err := s.updateBalance(tx, entry.UserID, newBalance); err != nil {
		return nil, err
	}

	return s.appendPaymentTransaction(tx, entry, models.PaymentTypeDeposit, newBalance)
}

// DebitTx runs the debit inside the caller's transaction.
func (s *LedgerService) DebitTx(tx *sql.Tx, entry LedgerEntry) (*models.PaymentTransaction, error) {
	if entry.Amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, entry.Amount)
	}

	balance, err := s.lockUserBalance(tx, entry.UserID)
	if err != nil {
		return nil, err
	}

	if balance < entry.Amount {
		return nil, fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientBalance, balance, entry.Amount)
	}

	newBalance := balance - entry.Amount
	if err := s.updateBalance(tx, entry.UserID, newBalance); err != nil {
		return nil, err
	}

	return s.appendPaymentTransaction(tx, entry, models.PaymentTypeWithdrawal, newBalance)
}

func (s *LedgerService) lockUserBalance(tx *sql.Tx, userID int) (int64, error) {
	var balance int64
	err := tx.QueryRow(`
		SELECT balance FROM users
		WHERE id = $1
		FOR UPDATE`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return balance, err
}

func (s *LedgerService) updateBalance(tx *sql.Tx, userID int, newBalance int64) error {
	result, err := tx.Exec(`
		UPDATE users
		SET balance = $1, updated_at = $2
		WHERE id = $3`,
		newBalance, time.Now(), userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("balance update affected no rows for user %d", userID)
	}

	return nil
}

func (s *LedgerService) appendPaymentTransaction(tx *sql.Tx, entry LedgerEntry, txType string, balanceAfter int64) (*models.PaymentTransaction, error) {
	now := time.Now()
	pt := &models.PaymentTransaction{
		TransactionID:       uuid.NewString(),
		UserID:              entry.UserID,
		Type:                txType,
		Amount:              entry.Amount,
		BalanceAfter:        balanceAfter,
		Status:              models.PaymentStatusCompleted,
		PaymentMethod:       entry.PaymentMethod,
		ExternalReferenceID: entry.ExternalRef,
		Description:         entry.Description,
		Metadata:            entry.Metadata,
		CompletedAt:         &now,
		CreatedAt:           now,
	}

	err := tx.QueryRow(`
		INSERT INTO payment_transactions
		(transaction_id, user_id, type, amount, balance_after, status, payment_method, external_reference_id, description, metadata, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		pt.TransactionID, pt.UserID, pt.Type, pt.Amount, pt.BalanceAfter, pt.Status,
		pt.PaymentMethod, pt.ExternalReferenceID, pt.Description, pt.Metadata, pt.CompletedAt, pt.CreatedAt,
	).Scan(&pt.ID)
	if err != nil {
		return nil, err
	}

	return pt, nil
}

// FetchTransactions returns the user's payment transactions, newest first.
func (s *LedgerService) FetchTransactions(userID int, limit int) ([]models.PaymentTransaction, error) {
	rows, err := s.db.Query(`
		SELECT id, transaction_id, user_id, type, amount, balance_after, status,
		       payment_method, COALESCE(external_reference_id, ''), COALESCE(description, ''),
		       completed_at, created_at
		FROM payment_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.PaymentTransaction{}
	for rows.Next() {
		var pt models.PaymentTransaction
		err := rows.Scan(
			&pt.ID, &pt.TransactionID, &pt.UserID, &pt.Type, &pt.Amount, &pt.BalanceAfter,
			&pt.Status, &pt.PaymentMethod, &pt.ExternalReferenceID, &pt.Description,
			&pt.CompletedAt, &pt.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, pt)
	}

	return transactions, rows.Err()
}

// FetchBalance reads the current balance without locking.
func (s *LedgerService) FetchBalance(userID int) (int64, error) {
	var balance int64
	err := s.db.QueryRow(`SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return balance, err
}
