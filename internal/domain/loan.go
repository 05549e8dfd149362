package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusPendingApproval LoanStatus = "pending_approval"
	LoanStatusApproved        LoanStatus = "approved"
	LoanStatusRejected        LoanStatus = "rejected"
	LoanStatusPaid            LoanStatus = "paid"
)

// Loan represents a loan entity
type Loan struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	OwnerID            string          `json:"ownerId" db:"owner_id"`
	Principal          decimal.Decimal `json:"principal" db:"principal"`
	AnnualRatePercent  decimal.Decimal `json:"annualRatePercent" db:"annual_rate_percent"`
	TermMonths         int             `json:"termMonths" db:"term_months"`
	MonthlyInstallment decimal.Decimal `json:"monthlyInstallment" db:"monthly_installment"`
	Status             LoanStatus      `json:"status" db:"status"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time       `json:"updatedAt" db:"updated_at"`
}

// IsOwnedBy reports whether ownerID owns the loan.
func (l *Loan) IsOwnedBy(ownerID string) bool {
	return l.OwnerID == ownerID
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	Principal         decimal.Decimal `json:"principal" validate:"decimal_gt0"`
	AnnualRatePercent decimal.Decimal `json:"annualRatePercent" validate:"decimal_gt0"`
	TermMonths        int             `json:"termMonths" validate:"required,gt=0"`
}

type LoanDecisionRequest struct {
	LoanID string `json:"loanId" validate:"required,uuid"`
}

type AdvanceScheduleRequest struct {
	LoanID string `json:"loanId" validate:"required,uuid"`
	// Sequence, when set, must be the earliest pending installment.
	Sequence int `json:"sequence,omitempty" validate:"gte=0"`
}
