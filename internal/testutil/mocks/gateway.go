package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockLoanGateway struct {
	mock.Mock
}

func (m *MockLoanGateway) GetLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, caller, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanGateway) GetSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID) ([]*domain.Installment, error) {
	args := m.Called(ctx, caller, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Installment), args.Error(1)
}

func (m *MockLoanGateway) AdvanceSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID, sequence int) (*domain.AdvanceResult, error) {
	args := m.Called(ctx, caller, loanID, sequence)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AdvanceResult), args.Error(1)
}

type MockDigestMailer struct {
	mock.Mock
}

func (m *MockDigestMailer) SendOverdueDigest(ctx context.Context, digest *domain.OverdueDigest) error {
	args := m.Called(ctx, digest)
	return args.Error(0)
}
