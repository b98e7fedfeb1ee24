package gateway

import (
	"context"
	"time"

	"github.com/itemlink/backend/internal/models"
)

// BankGateway fetches settled bank transactions for the platform account.
// Implemented by the Bankda client; substituted with fakes in tests.
type BankGateway interface {
	FetchTransactions(ctx context.Context, from, to time.Time) ([]models.BankTransactionRecord, error)
}

// OrderRegistrar pre-registers an expected incoming payment with the payment
// gateway so it can auto-confirm the transfer and push a webhook.
type OrderRegistrar interface {
	RegisterOrder(ctx context.Context, order OrderRegistration) (*OrderResult, error)
}

// OrderRegistration describes one expected payment.
type OrderRegistration struct {
	DepositRequestID int
	Amount           int64
	DepositorName    string
	ExpectedDate     time.Time
	Phone            string
	Email            string
}

// OrderResult carries the provider-side correlation id for a registered order.
type OrderResult struct {
	OrderNumber string
}

// KST is the providers' native timezone; both Bankda timestamps and
// PayAction expected-payment times are expressed in it.
var KST = time.FixedZone("KST", 9*60*60)
