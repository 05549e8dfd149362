package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"
)

// LoanGateway is the payments side view of the loan service. It is served
// in-process by LocalLoanGateway or over HTTP by client.LoanClient.
type LoanGateway interface {
	GetLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error)
	GetSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID) ([]*domain.Installment, error)
	AdvanceSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID, sequence int) (*domain.AdvanceResult, error)
}

// LocalLoanGateway calls the loan service in the same process. Calls made
// inside a unit of work join its transaction.
type LocalLoanGateway struct {
	loans *LoanService
}

func NewLocalLoanGateway(loans *LoanService) *LocalLoanGateway {
	return &LocalLoanGateway{loans: loans}
}

func (g *LocalLoanGateway) GetLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error) {
	return g.loans.GetLoan(ctx, caller, loanID)
}

// GetSchedule reads the stored schedule; a cached copy may trail a concurrent payment.
func (g *LocalLoanGateway) GetSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID) ([]*domain.Installment, error) {
	return g.loans.CurrentSchedule(ctx, caller, loanID)
}

// AdvanceSchedule runs inside the payments trust boundary, the same standing
// a remote call gets from the internal service key.
func (g *LocalLoanGateway) AdvanceSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID, sequence int) (*domain.AdvanceResult, error) {
	caller.Internal = true
	return g.loans.AdvanceSchedule(ctx, caller, loanID, sequence)
}
