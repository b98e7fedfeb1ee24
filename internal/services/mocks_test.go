package services

import (
	"context"
	"time"

	"github.com/itemlink/backend/internal/gateway"
	"github.com/itemlink/backend/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockBankGateway struct {
	mock.Mock
}

func (m *MockBankGateway) FetchTransactions(ctx context.Context, from, to time.Time) ([]models.BankTransactionRecord, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BankTransactionRecord), args.Error(1)
}

type MockOrderRegistrar struct {
	mock.Mock
}

func (m *MockOrderRegistrar) RegisterOrder(ctx context.Context, order gateway.OrderRegistration) (*gateway.OrderResult, error) {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.OrderResult), args.Error(1)
}
