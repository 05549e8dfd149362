package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customError "github.com/segyhp/loan-platform/pkg/errors"
)

func TestGenerateSchedule_OneYearAtTwelvePercent(t *testing.T) {
	loanID := uuid.New()
	generatedAt := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)

	schedule, err := GenerateSchedule(loanID, decimal.NewFromInt(1200), decimal.NewFromInt(12), 12, generatedAt)
	require.NoError(t, err)
	require.Len(t, schedule, 12)

	fixed := decimal.RequireFromString("106.62")
	for i, row := range schedule[:11] {
		assert.Equal(t, i+1, row.Sequence)
		assert.Equal(t, loanID, row.LoanID)
		assert.True(t, fixed.Equal(row.DueAmount), "row %d due %s", row.Sequence, row.DueAmount)
		assert.Equal(t, domain.InstallmentStatusPending, row.Status)
		assert.Nil(t, row.PaidAt)
	}

	last := schedule[11]
	assert.True(t, decimal.RequireFromString("27.18").Equal(last.DueAmount), "last due %s", last.DueAmount)
	assert.True(t, last.RemainingBalance.IsZero())
	assert.True(t, decimal.RequireFromString("27.18").Equal(schedule[10].RemainingBalance))

	// month arithmetic normalizes like time.AddDate
	assert.Equal(t, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC), schedule[0].DueDate)
	assert.Equal(t, time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC), last.DueDate)
}

func TestGenerateSchedule_Properties(t *testing.T) {
	tests := []struct {
		principal string
		rate      string
		term      int
	}{
		{"1200", "12", 12},
		{"1000", "12", 1},
		{"100000", "5", 360},
		{"5000", "7.5", 24},
		{"999.99", "0.01", 7},
		{"250000.55", "3.875", 600},
		{"100", "120", 12},
		{"0.05", "18", 12},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%s%%x%d", tt.principal, tt.rate, tt.term), func(t *testing.T) {
			principal := decimal.RequireFromString(tt.principal)
			schedule, err := GenerateSchedule(uuid.New(), principal, decimal.RequireFromString(tt.rate), tt.term, time.Now().UTC())
			require.NoError(t, err)
			require.Len(t, schedule, tt.term)

			sum := decimal.Zero
			previous := principal
			for i, row := range schedule {
				assert.Equal(t, i+1, row.Sequence)
				assert.False(t, row.DueAmount.IsNegative(), "row %d due is negative", row.Sequence)
				assert.False(t, row.RemainingBalance.IsNegative(), "row %d balance is negative", row.Sequence)
				assert.True(t, row.RemainingBalance.LessThanOrEqual(previous), "row %d balance increased", row.Sequence)
				assert.LessOrEqual(t, -row.DueAmount.Exponent(), int32(2))
				previous = row.RemainingBalance
				sum = sum.Add(row.DueAmount)
			}

			assert.True(t, principal.Equal(sum), "sum %s != principal %s", sum, principal)
			assert.True(t, schedule[len(schedule)-1].RemainingBalance.IsZero())
		})
	}
}

func TestGenerateSchedule_CapsDueAmountAtBalance(t *testing.T) {
	schedule, err := GenerateSchedule(uuid.New(), decimal.NewFromInt(100), decimal.NewFromInt(120), 12, time.Now().UTC())
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("14.68").Equal(schedule[0].DueAmount))
	assert.True(t, decimal.RequireFromString("11.92").Equal(schedule[6].DueAmount))
	assert.True(t, schedule[6].RemainingBalance.IsZero())
	for _, row := range schedule[7:] {
		assert.True(t, row.DueAmount.IsZero())
	}
}

func TestGenerateSchedule_InvalidTerms(t *testing.T) {
	_, err := GenerateSchedule(uuid.New(), decimal.NewFromInt(1000), decimal.Zero, 12, time.Now())
	assert.ErrorIs(t, err, customError.ErrInvalidLoanTerms)

	_, err = GenerateSchedule(uuid.New(), decimal.NewFromInt(1000), decimal.NewFromInt(5), 0, time.Now())
	assert.ErrorIs(t, err, customError.ErrInvalidLoanTerms)
}
