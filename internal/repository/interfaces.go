package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"
)

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by its ID, sql.ErrNoRows when absent
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// ListByOwner retrieves every loan owned by ownerID, newest first
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Loan, error)

	// ListByStatus retrieves loans in the given status, oldest first
	ListByStatus(ctx context.Context, status domain.LoanStatus) ([]*domain.Loan, error)

	// CountByOwnerAndStatus counts the owner's loans in the given status
	CountByOwnerAndStatus(ctx context.Context, ownerID string, status domain.LoanStatus) (int, error)

	// TransitionStatus moves the loan from one status to another. It reports
	// false when the loan is absent or not in the expected status.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.LoanStatus) (bool, error)
}

// InstallmentRepository defines the interface for amortization schedule operations
type InstallmentRepository interface {
	// CreateSchedule inserts all rows of a schedule
	CreateSchedule(ctx context.Context, installments []*domain.Installment) error

	// GetScheduleByLoanID retrieves the schedule ordered by sequence
	GetScheduleByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error)

	// CountByLoanID counts schedule rows for a loan
	CountByLoanID(ctx context.Context, loanID uuid.UUID) (int, error)

	// CountPending counts installments still pending for a loan
	CountPending(ctx context.Context, loanID uuid.UUID) (int, error)

	// ClaimNextPending marks the earliest pending installment paid. When
	// sequence is positive the claim only succeeds if that installment is the
	// earliest pending one. Returns sql.ErrNoRows when nothing was claimed.
	ClaimNextPending(ctx context.Context, loanID uuid.UUID, sequence int, paidAt time.Time) (*domain.Installment, error)

	// ListOverdue lists pending installments of approved loans due before cutoff
	ListOverdue(ctx context.Context, cutoff time.Time) ([]*domain.OverdueInstallment, error)
}

// PaymentRepository defines the interface for payment data operations
type PaymentRepository interface {
	// Create creates a new payment record
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByLoanID retrieves all payments for a loan, newest first
	GetByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.Payment, error)

	// ListAll retrieves every payment, newest first
	ListAll(ctx context.Context) ([]*domain.Payment, error)
}

// UnitOfWork runs fn atomically. Repositories called with the context handed
// to fn take part in the same transaction; nested calls join the outer one.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
