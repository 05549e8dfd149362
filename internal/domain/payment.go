package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is an immutable record of an amount applied to a loan installment
type Payment struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	LoanID              uuid.UUID       `json:"loanId" db:"loan_id"`
	OwnerID             string          `json:"ownerId" db:"owner_id"`
	Amount              decimal.Decimal `json:"amount" db:"amount"`
	InstallmentSequence int             `json:"installmentSequence" db:"installment_sequence"`
	CreatedAt           time.Time       `json:"createdAt" db:"created_at"`
}

type ApplyPaymentRequest struct {
	LoanID string          `json:"loanId" validate:"required,uuid"`
	Amount decimal.Decimal `json:"amount" validate:"decimal_gt0"`
}

// PaymentOutcome is returned to the payer once a payment has been reconciled.
type PaymentOutcome struct {
	Message     string           `json:"message"`
	Change      *decimal.Decimal `json:"change,omitempty"`
	LoanClosed  bool             `json:"loanClosed"`
	Installment *Installment     `json:"installment,omitempty"`
	Payment     *Payment         `json:"payment,omitempty"`
}
