package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/segyhp/loan-platform/internal/testutil/mocks"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOverdueReporter_Run(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -3)

	t.Run("nothing overdue sends nothing", func(t *testing.T) {
		repo := &mocks.MockInstallmentRepository{}
		mailer := &mocks.MockDigestMailer{}
		repo.On("ListOverdue", mock.Anything, cutoff).Return([]*domain.OverdueInstallment{}, nil)

		logger, hook := test.NewNullLogger()
		reporter := NewOverdueReporter(repo, 3, mailer, logger)
		reporter.now = func() time.Time { return now }

		digest, err := reporter.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, digest.Installments)
		assert.True(t, digest.TotalDue.IsZero())
		assert.Equal(t, "no overdue installments", hook.LastEntry().Message)
		mailer.AssertNotCalled(t, "SendOverdueDigest", mock.Anything, mock.Anything)
	})

	t.Run("overdue rows are mailed", func(t *testing.T) {
		loanID := uuid.New()
		overdue := []*domain.OverdueInstallment{
			{LoanID: loanID, OwnerID: "user-1", Sequence: 2, DueAmount: decimal.RequireFromString("106.62")},
			{LoanID: loanID, OwnerID: "user-1", Sequence: 3, DueAmount: decimal.RequireFromString("106.62")},
		}
		repo := &mocks.MockInstallmentRepository{}
		mailer := &mocks.MockDigestMailer{}
		repo.On("ListOverdue", mock.Anything, cutoff).Return(overdue, nil)
		mailer.On("SendOverdueDigest", mock.Anything, mock.Anything).Return(nil)

		logger, _ := test.NewNullLogger()
		reporter := NewOverdueReporter(repo, 3, mailer, logger)
		reporter.now = func() time.Time { return now }

		digest, err := reporter.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, digest.Loans())
		assert.True(t, decimal.RequireFromString("213.24").Equal(digest.TotalDue))
		mailer.AssertExpectations(t)
	})

	t.Run("mail failure is returned", func(t *testing.T) {
		repo := &mocks.MockInstallmentRepository{}
		mailer := &mocks.MockDigestMailer{}
		repo.On("ListOverdue", mock.Anything, cutoff).
			Return([]*domain.OverdueInstallment{{LoanID: uuid.New(), DueAmount: decimal.NewFromInt(1)}}, nil)
		mailer.On("SendOverdueDigest", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

		logger, _ := test.NewNullLogger()
		reporter := NewOverdueReporter(repo, 3, mailer, logger)
		reporter.now = func() time.Time { return now }

		digest, err := reporter.Run(context.Background())
		assert.Error(t, err)
		assert.NotNil(t, digest)
	})

	t.Run("without a mailer the digest is only logged", func(t *testing.T) {
		repo := &mocks.MockInstallmentRepository{}
		repo.On("ListOverdue", mock.Anything, cutoff).
			Return([]*domain.OverdueInstallment{{LoanID: uuid.New(), DueAmount: decimal.NewFromInt(1)}}, nil)

		logger, hook := test.NewNullLogger()
		reporter := NewOverdueReporter(repo, 3, nil, logger)
		reporter.now = func() time.Time { return now }

		_, err := reporter.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "overdue installments found", hook.LastEntry().Message)
	})
}
