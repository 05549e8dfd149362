package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InstallmentStatus is the payment state of one schedule row.
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPaid    InstallmentStatus = "paid"
)

// Installment represents one row of a loan's amortization schedule
type Installment struct {
	ID               uuid.UUID         `json:"id" db:"id"`
	LoanID           uuid.UUID         `json:"loanId" db:"loan_id"`
	Sequence         int               `json:"sequence" db:"sequence"`
	DueAmount        decimal.Decimal   `json:"dueAmount" db:"due_amount"`
	RemainingBalance decimal.Decimal   `json:"remainingBalance" db:"remaining_balance"`
	DueDate          time.Time         `json:"dueDate" db:"due_date"`
	Status           InstallmentStatus `json:"status" db:"status"`
	PaidAt           *time.Time        `json:"paidAt,omitempty" db:"paid_at"`
	CreatedAt        time.Time         `json:"createdAt" db:"created_at"`
}

// IsPending reports whether the installment is still outstanding.
func (i *Installment) IsPending() bool {
	return i.Status == InstallmentStatusPending
}

// NextPending returns the earliest pending installment of an ordered schedule.
func NextPending(schedule []*Installment) *Installment {
	for _, installment := range schedule {
		if installment.IsPending() {
			return installment
		}
	}
	return nil
}

// Messages reported after a schedule advance.
const (
	MessageInstallmentPaid = "installment paid"
	MessageLoanFullyPaid   = "loan fully paid"
)

// AdvanceResult is the outcome of marking the earliest pending installment paid.
type AdvanceResult struct {
	Message     string       `json:"message"`
	Installment *Installment `json:"installment,omitempty"`
	LoanClosed  bool         `json:"loanClosed"`
}

// OverdueInstallment is a pending installment past its due date on an approved loan.
type OverdueInstallment struct {
	LoanID    uuid.UUID       `db:"loan_id"`
	OwnerID   string          `db:"owner_id"`
	Sequence  int             `db:"sequence"`
	DueAmount decimal.Decimal `db:"due_amount"`
	DueDate   time.Time       `db:"due_date"`
}

// OverdueDigest summarises the overdue installments found by one run.
type OverdueDigest struct {
	GeneratedAt  time.Time
	Cutoff       time.Time
	Installments []*OverdueInstallment
	TotalDue     decimal.Decimal
}

// Loans returns the number of distinct loans in the digest.
func (d *OverdueDigest) Loans() int {
	seen := make(map[uuid.UUID]struct{}, len(d.Installments))
	for _, installment := range d.Installments {
		seen[installment.LoanID] = struct{}{}
	}
	return len(seen)
}
