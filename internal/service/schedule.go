package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/segyhp/loan-platform/pkg/utils"

	"github.com/shopspring/decimal"
)

// GenerateSchedule builds the amortization schedule of a loan. Every row but
// the last is due the rounded fixed installment; the last row takes whatever
// balance remains, so the due amounts always add up to the principal.
func GenerateSchedule(loanID uuid.UUID, principal, annualRatePercent decimal.Decimal, termMonths int, generatedAt time.Time) ([]*domain.Installment, error) {
	installment, err := utils.CalculateMonthlyInstallment(principal, annualRatePercent, termMonths)
	if err != nil {
		return nil, err
	}
	installment = utils.RoundCurrency(installment)

	balance := utils.RoundCurrency(principal)
	schedule := make([]*domain.Installment, 0, termMonths)

	for sequence := 1; sequence <= termMonths; sequence++ {
		due := installment
		if sequence == termMonths || due.GreaterThan(balance) {
			due = balance
		}

		balance = balance.Sub(due)
		if balance.IsNegative() {
			balance = decimal.Zero
		}

		schedule = append(schedule, &domain.Installment{
			ID:               uuid.New(),
			LoanID:           loanID,
			Sequence:         sequence,
			DueAmount:        utils.RoundCurrency(due),
			RemainingBalance: utils.RoundCurrency(balance),
			DueDate:          utils.CalculateDueDate(generatedAt, sequence),
			Status:           domain.InstallmentStatusPending,
			CreatedAt:        generatedAt,
		})
	}

	return schedule, nil
}
