package utils

import (
	"time"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/shopspring/decimal"
)

const (
	// MaxTermMonths bounds the schedule length accepted by the calculator.
	MaxTermMonths = 600

	factorPrecision = 28
)

var (
	one          = decimal.NewFromInt(1)
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
)

// MonthlyRate converts an annual nominal percentage into a monthly rate.
// Formula: annualRatePercent / 100 / 12
func MonthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.DivRound(hundred.Mul(monthsInYear), factorPrecision)
}

// CalculateMonthlyInstallment returns the fixed annuity installment, unrounded.
// Formula: P * r / (1 - (1+r)^-n), evaluated as P * r * (1+r)^n / ((1+r)^n - 1)
func CalculateMonthlyInstallment(principal, annualRatePercent decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if err := ValidateLoanTerms(principal, annualRatePercent, termMonths); err != nil {
		return decimal.Zero, err
	}

	r := MonthlyRate(annualRatePercent)
	factor := compoundFactor(r, termMonths)
	growth := factor.Sub(one)
	if growth.IsZero() {
		return decimal.Zero, customError.WrapInvalidLoanTerms("annual rate is too small to accrue interest")
	}

	return principal.Mul(r).Mul(factor).Div(growth), nil
}

// ValidateLoanTerms rejects non-positive principal, rate or term.
func ValidateLoanTerms(principal, annualRatePercent decimal.Decimal, termMonths int) error {
	if !principal.IsPositive() {
		return customError.WrapInvalidLoanTerms("principal must be greater than 0")
	}
	if !annualRatePercent.IsPositive() {
		return customError.WrapInvalidLoanTerms("annual rate must be greater than 0")
	}
	if termMonths < 1 || termMonths > MaxTermMonths {
		return customError.WrapInvalidLoanTerms("term must be between 1 and 600 months")
	}
	return nil
}

// compoundFactor computes (1+r)^n with a bounded scale so long terms stay cheap.
func compoundFactor(r decimal.Decimal, periods int) decimal.Decimal {
	base := one.Add(r)
	factor := one
	for i := 0; i < periods; i++ {
		factor = factor.Mul(base).Truncate(factorPrecision)
	}
	return factor
}

// RoundCurrency rounds an amount to cents.
func RoundCurrency(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// CalculateDueDate calculates the due date for a specific installment
// Installment n is due n calendar months after the schedule was generated.
func CalculateDueDate(generatedAt time.Time, sequence int) time.Time {
	return generatedAt.AddDate(0, sequence, 0)
}

// DaysOverdue returns the whole days elapsed since dueDate, 0 when not yet due.
func DaysOverdue(dueDate, now time.Time) int {
	if !now.After(dueDate) {
		return 0
	}
	return int(now.Sub(dueDate).Hours() / 24)
}
