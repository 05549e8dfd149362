package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/segyhp/loan-platform/internal/repository"
	"github.com/segyhp/loan-platform/internal/testutil/mocks"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	customError "github.com/segyhp/loan-platform/pkg/errors"
)

type platform struct {
	db           *sqlx.DB
	redis        *miniredis.Miniredis
	loans        *LoanService
	payments     *PaymentService
	installments repository.InstallmentRepository
	cache        *ScheduleCache
}

func newPlatform(t *testing.T, policy PaymentPolicy) *platform {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.Migrate(context.Background(), db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger, _ := test.NewNullLogger()
	cache := NewScheduleCache(rdb, time.Hour, logger)
	uow := repository.NewUnitOfWork(db)
	installments := repository.NewInstallmentRepository(db)

	loans := NewLoanService(repository.NewLoanRepository(db), installments, uow, cache, logger)
	payments := NewPaymentService(repository.NewPaymentRepository(db), uow, NewLocalLoanGateway(loans), policy, cache, logger)

	return &platform{db: db, redis: mr, loans: loans, payments: payments, installments: installments, cache: cache}
}

func (p *platform) approvedLoan(t *testing.T, caller domain.Caller, principal string, term int) *domain.Loan {
	t.Helper()
	ctx := context.Background()

	loan, err := p.loans.RequestLoan(ctx, caller, &domain.CreateLoanRequest{
		Principal:         decimal.RequireFromString(principal),
		AnnualRatePercent: decimal.NewFromInt(12),
		TermMonths:        term,
	})
	require.NoError(t, err)

	loan, err = p.loans.ApproveLoan(ctx, adminCaller, loan.ID)
	require.NoError(t, err)
	return loan
}

func TestPlatform_RepaysLoanInOrder(t *testing.T) {
	ctx := context.Background()
	p := newPlatform(t, ExactPolicy{})
	loan := p.approvedLoan(t, clientCaller, "1200", 3)

	schedule, err := p.loans.GetSchedule(ctx, clientCaller, loan.ID)
	require.NoError(t, err)
	require.Len(t, schedule, 3)
	assert.True(t, p.redis.Exists(scheduleKey(loan.ID)))

	for i, row := range schedule {
		outcome, err := p.payments.ApplyPayment(ctx, clientCaller, &domain.ApplyPaymentRequest{
			LoanID: loan.ID.String(),
			Amount: row.DueAmount,
		})
		require.NoError(t, err)
		assert.Equal(t, row.Sequence, outcome.Installment.Sequence)
		assert.False(t, p.redis.Exists(scheduleKey(loan.ID)), "payment must invalidate the cached schedule")

		last := i == len(schedule)-1
		assert.Equal(t, last, outcome.LoanClosed)
		if last {
			assert.Equal(t, domain.MessageLoanFullyPaid, outcome.Message)
		} else {
			assert.Equal(t, domain.MessageInstallmentPaid, outcome.Message)
		}

		current, err := p.loans.GetLoan(ctx, clientCaller, loan.ID)
		require.NoError(t, err)
		if last {
			assert.Equal(t, domain.LoanStatusPaid, current.Status)
		} else {
			assert.Equal(t, domain.LoanStatusApproved, current.Status)
		}
	}

	schedule, err = p.loans.GetSchedule(ctx, clientCaller, loan.ID)
	require.NoError(t, err)
	for _, row := range schedule {
		assert.Equal(t, domain.InstallmentStatusPaid, row.Status)
		assert.NotNil(t, row.PaidAt)
	}

	_, err = p.payments.ApplyPayment(ctx, clientCaller, &domain.ApplyPaymentRequest{
		LoanID: loan.ID.String(),
		Amount: schedule[0].DueAmount,
	})
	assert.ErrorIs(t, err, customError.ErrNoPendingInstallment)

	history, err := p.payments.History(ctx, adminCaller, &loan.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	total := decimal.Zero
	for _, payment := range history {
		total = total.Add(payment.Amount)
	}
	assert.True(t, loan.Principal.Equal(total))

	// a paid off loan no longer blocks a new request
	_, err = p.loans.RequestLoan(ctx, clientCaller, &domain.CreateLoanRequest{
		Principal:         decimal.NewFromInt(500),
		AnnualRatePercent: decimal.NewFromInt(10),
		TermMonths:        6,
	})
	assert.NoError(t, err)
}

func TestPlatform_EligibilityGate(t *testing.T) {
	ctx := context.Background()
	p := newPlatform(t, ExactPolicy{})
	request := &domain.CreateLoanRequest{
		Principal:         decimal.NewFromInt(1200),
		AnnualRatePercent: decimal.NewFromInt(12),
		TermMonths:        12,
	}

	loan, err := p.loans.RequestLoan(ctx, clientCaller, request)
	require.NoError(t, err)

	_, err = p.loans.RequestLoan(ctx, clientCaller, request)
	assert.ErrorIs(t, err, customError.ErrDuplicateRequest)

	_, err = p.loans.ApproveLoan(ctx, adminCaller, loan.ID)
	require.NoError(t, err)

	_, err = p.loans.RequestLoan(ctx, clientCaller, request)
	assert.ErrorIs(t, err, customError.ErrActiveLoanExists)

	// approving twice is rejected and does not duplicate rows
	_, err = p.loans.ApproveLoan(ctx, adminCaller, loan.ID)
	assert.ErrorIs(t, err, customError.ErrLoanNotFound)
	count, err := p.installments.CountByLoanID(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, count)

	_, err = p.loans.RejectLoan(ctx, adminCaller, loan.ID)
	assert.ErrorIs(t, err, customError.ErrLoanNotFound)
}

func TestPlatform_RejectedPaymentChangesNothing(t *testing.T) {
	ctx := context.Background()
	p := newPlatform(t, ExactPolicy{})
	loan := p.approvedLoan(t, clientCaller, "1200", 12)

	_, err := p.payments.ApplyPayment(ctx, clientCaller, &domain.ApplyPaymentRequest{
		LoanID: loan.ID.String(),
		Amount: decimal.RequireFromString("50.00"),
	})
	assert.ErrorIs(t, err, customError.ErrAmountMismatch)

	pending, err := p.installments.CountPending(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, pending)

	history, err := p.payments.History(ctx, adminCaller, nil)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPlatform_OtherClientsCannotPay(t *testing.T) {
	ctx := context.Background()
	p := newPlatform(t, ExactPolicy{})
	loan := p.approvedLoan(t, clientCaller, "1200", 12)

	stranger := domain.Caller{ID: "user-9", Role: domain.RoleClient}
	_, err := p.payments.ApplyPayment(ctx, stranger, &domain.ApplyPaymentRequest{
		LoanID: loan.ID.String(),
		Amount: loan.MonthlyInstallment,
	})
	assert.ErrorIs(t, err, customError.ErrLoanNotFound)
}

func TestPlatform_OverpayPolicy(t *testing.T) {
	ctx := context.Background()
	p := newPlatform(t, OverpayPolicy{})
	loan := p.approvedLoan(t, clientCaller, "1200", 12)

	outcome, err := p.payments.ApplyPayment(ctx, clientCaller, &domain.ApplyPaymentRequest{
		LoanID: loan.ID.String(),
		Amount: decimal.RequireFromString("200.00"),
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Change)
	assert.True(t, decimal.RequireFromString("93.38").Equal(*outcome.Change))

	// change is never credited to the next installment
	schedule, err := p.loans.GetSchedule(ctx, clientCaller, loan.ID)
	require.NoError(t, err)
	next := domain.NextPending(schedule)
	require.NotNil(t, next)
	assert.Equal(t, 2, next.Sequence)
	assert.True(t, decimal.RequireFromString("106.62").Equal(next.DueAmount))
}

func TestPlatform_ConcurrentPaymentsClaimOnce(t *testing.T) {
	ctx := context.Background()
	p := newPlatform(t, ExactPolicy{})
	loan := p.approvedLoan(t, clientCaller, "1000", 1)

	request := &domain.ApplyPaymentRequest{
		LoanID: loan.ID.String(),
		Amount: decimal.RequireFromString("1000.00"),
	}

	const payers = 4
	errs := make([]error, payers)
	var wg sync.WaitGroup
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.payments.ApplyPayment(ctx, clientCaller, request)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, customError.ErrNoPendingInstallment)
	}
	assert.Equal(t, 1, succeeded)

	history, err := p.payments.History(ctx, adminCaller, &loan.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPlatform_AdvanceRejectsOutOfOrderSequence(t *testing.T) {
	ctx := context.Background()
	p := newPlatform(t, ExactPolicy{})
	loan := p.approvedLoan(t, clientCaller, "1200", 12)

	_, err := p.loans.AdvanceSchedule(ctx, adminCaller, loan.ID, 2)
	assert.ErrorIs(t, err, customError.ErrNoPendingInstallment)

	result, err := p.loans.AdvanceSchedule(ctx, adminCaller, loan.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Installment.Sequence)
}

func TestPlatform_ScheduleReadOverlappingPaymentIsNotCached(t *testing.T) {
	ctx := context.Background()
	p := newPlatform(t, ExactPolicy{})
	loan := p.approvedLoan(t, clientCaller, "1200", 3)

	// a schedule read starts, then a payment commits before it writes the cache
	version := p.cache.Version(ctx, loan.ID)
	snapshot, err := p.installments.GetScheduleByLoanID(ctx, loan.ID)
	require.NoError(t, err)

	_, err = p.payments.ApplyPayment(ctx, clientCaller, &domain.ApplyPaymentRequest{
		LoanID: loan.ID.String(),
		Amount: snapshot[0].DueAmount,
	})
	require.NoError(t, err)

	p.cache.Set(ctx, loan.ID, version, snapshot)
	assert.False(t, p.redis.Exists(scheduleKey(loan.ID)))

	schedule, err := p.loans.GetSchedule(ctx, clientCaller, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentStatusPaid, schedule[0].Status)

	outcome, err := p.payments.ApplyPayment(ctx, clientCaller, &domain.ApplyPaymentRequest{
		LoanID: loan.ID.String(),
		Amount: schedule[1].DueAmount,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Installment.Sequence)
}

func TestPlatform_StaleCachedScheduleDoesNotBlockPayments(t *testing.T) {
	ctx := context.Background()
	p := newPlatform(t, ExactPolicy{})
	loan := p.approvedLoan(t, clientCaller, "1200", 3)

	snapshot, err := p.installments.GetScheduleByLoanID(ctx, loan.ID)
	require.NoError(t, err)
	stale, err := json.Marshal(snapshot)
	require.NoError(t, err)

	_, err = p.payments.ApplyPayment(ctx, clientCaller, &domain.ApplyPaymentRequest{
		LoanID: loan.ID.String(),
		Amount: snapshot[0].DueAmount,
	})
	require.NoError(t, err)

	// payments settle from the store even while the cache still shows row 1 pending
	require.NoError(t, p.redis.Set(scheduleKey(loan.ID), string(stale)))
	outcome, err := p.payments.ApplyPayment(ctx, clientCaller, &domain.ApplyPaymentRequest{
		LoanID: loan.ID.String(),
		Amount: snapshot[1].DueAmount,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Installment.Sequence)

	// an advance for an installment the store already settled drops the stale copy
	require.NoError(t, p.redis.Set(scheduleKey(loan.ID), string(stale)))
	_, err = p.loans.AdvanceSchedule(ctx, adminCaller, loan.ID, 1)
	assert.ErrorIs(t, err, customError.ErrNoPendingInstallment)
	assert.False(t, p.redis.Exists(scheduleKey(loan.ID)))

	schedule, err := p.loans.GetSchedule(ctx, clientCaller, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentStatusPaid, schedule[1].Status)
	assert.Equal(t, domain.InstallmentStatusPending, schedule[2].Status)
}

func TestPlatform_OverdueDigest(t *testing.T) {
	ctx := context.Background()
	p := newPlatform(t, ExactPolicy{})

	approvedAt := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	p.loans.now = func() time.Time { return approvedAt }
	loan := p.approvedLoan(t, clientCaller, "1200", 12)

	mailer := &mocks.MockDigestMailer{}
	mailer.On("SendOverdueDigest", mock.Anything, mock.MatchedBy(func(d *domain.OverdueDigest) bool {
		return len(d.Installments) == 2 && d.Loans() == 1
	})).Return(nil)

	logger, _ := test.NewNullLogger()
	reporter := NewOverdueReporter(p.installments, 5, mailer, logger)
	// two installments are due before the cutoff of April 9th
	reporter.now = func() time.Time { return time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC) }

	digest, err := reporter.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, digest.Installments[0].LoanID)
	assert.True(t, decimal.RequireFromString("213.24").Equal(digest.TotalDue))
	mailer.AssertExpectations(t)
}
