package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/segyhp/loan-platform/internal/repository"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/sirupsen/logrus"
)

type PaymentService struct {
	paymentRepo repository.PaymentRepository
	uow         repository.UnitOfWork
	loans       LoanGateway
	policy      PaymentPolicy
	cache       *ScheduleCache
	logger      *logrus.Logger
	now         func() time.Time
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	uow repository.UnitOfWork,
	loans LoanGateway,
	policy PaymentPolicy,
	cache *ScheduleCache,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		uow:         uow,
		loans:       loans,
		policy:      policy,
		cache:       cache,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the active payment policy.
func (s *PaymentService) Policy() PaymentPolicy {
	return s.policy
}

// gatewayError keeps business errors from the loan service and reports
// anything else as a transport failure.
func gatewayError(err error) error {
	var be *customError.BusinessError
	if errors.As(err, &be) {
		return err
	}
	return customError.WrapTransportError(err)
}

// ApplyPayment settles the earliest pending installment of a loan. The payment
// record and the schedule advance are committed together or not at all.
func (s *PaymentService) ApplyPayment(ctx context.Context, caller domain.Caller, request *domain.ApplyPaymentRequest) (*domain.PaymentOutcome, error) {
	if err := canApplyPay.check(caller); err != nil {
		return nil, err
	}

	loanID, err := uuid.Parse(request.LoanID)
	if err != nil {
		return nil, customError.WrapInvalidRequest("loanId must be a valid UUID", err)
	}

	loan, err := s.loans.GetLoan(ctx, caller, loanID)
	if err != nil {
		return nil, gatewayError(err)
	}

	switch loan.Status {
	case domain.LoanStatusApproved:
	case domain.LoanStatusPaid:
		return nil, customError.WrapNoPendingInstallment(loanID.String())
	default:
		return nil, customError.WrapLoanNotInState(loanID.String(), string(domain.LoanStatusApproved))
	}

	schedule, err := s.loans.GetSchedule(ctx, caller, loanID)
	if err != nil {
		return nil, gatewayError(err)
	}
	next := domain.NextPending(schedule)
	if next == nil {
		return nil, customError.WrapNoPendingInstallment(loanID.String())
	}

	change, err := s.policy.Settle(next.DueAmount, request.Amount)
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:                  uuid.New(),
		LoanID:              loanID,
		OwnerID:             loan.OwnerID,
		Amount:              next.DueAmount,
		InstallmentSequence: next.Sequence,
		CreatedAt:           s.now(),
	}

	var advanced *domain.AdvanceResult
	err = s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.paymentRepo.Create(ctx, payment); err != nil {
			return customError.WrapDatabaseError(err)
		}

		result, err := s.loans.AdvanceSchedule(ctx, caller, loanID, next.Sequence)
		if err != nil {
			return gatewayError(err)
		}
		advanced = result
		return nil
	})
	if err != nil {
		if advanced != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"loan_id":    loanID,
				"payment_id": payment.ID,
				"sequence":   next.Sequence,
			}).Error("schedule advanced but payment record was not committed")
		}
		return nil, storageError(err)
	}

	s.cache.Invalidate(ctx, loanID)

	s.logger.WithFields(logrus.Fields{
		"loan_id":    loanID,
		"payment_id": payment.ID,
		"sequence":   next.Sequence,
		"amount":     payment.Amount.StringFixed(2),
		"policy":     s.policy.Name(),
	}).Info("payment recorded")

	outcome := &domain.PaymentOutcome{
		Message:     advanced.Message,
		LoanClosed:  advanced.LoanClosed,
		Installment: advanced.Installment,
		Payment:     payment,
	}
	if change.IsPositive() {
		outcome.Change = &change
	}

	return outcome, nil
}

// History lists recorded payments newest first, optionally for a single loan
func (s *PaymentService) History(ctx context.Context, caller domain.Caller, loanID *uuid.UUID) ([]*domain.Payment, error) {
	if err := canViewHistory.check(caller); err != nil {
		return nil, err
	}

	var (
		payments []*domain.Payment
		err      error
	)
	if loanID != nil {
		payments, err = s.paymentRepo.GetByLoanID(ctx, *loanID)
	} else {
		payments, err = s.paymentRepo.ListAll(ctx)
	}
	if err != nil {
		return nil, storageError(err)
	}

	return payments, nil
}
