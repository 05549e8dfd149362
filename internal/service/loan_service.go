package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/segyhp/loan-platform/internal/repository"
	"github.com/segyhp/loan-platform/pkg/utils"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/sirupsen/logrus"
)

type LoanService struct {
	loanRepo        repository.LoanRepository
	installmentRepo repository.InstallmentRepository
	uow             repository.UnitOfWork
	cache           *ScheduleCache
	logger          *logrus.Logger
	now             func() time.Time
}

func NewLoanService(
	loanRepo repository.LoanRepository,
	installmentRepo repository.InstallmentRepository,
	uow repository.UnitOfWork,
	cache *ScheduleCache,
	logger *logrus.Logger,
) *LoanService {
	return &LoanService{
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
		uow:             uow,
		cache:           cache,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// storageError wraps a repository failure once, leaving business errors as they are.
func storageError(err error) error {
	var be *customError.BusinessError
	if errors.As(err, &be) {
		return err
	}
	return customError.WrapDatabaseError(err)
}

// RequestLoan creates a loan awaiting approval for the calling client
func (s *LoanService) RequestLoan(ctx context.Context, caller domain.Caller, request *domain.CreateLoanRequest) (*domain.Loan, error) {
	if err := canRequestLoan.check(caller); err != nil {
		return nil, err
	}

	principal := utils.RoundCurrency(request.Principal)
	installment, err := utils.CalculateMonthlyInstallment(principal, request.AnnualRatePercent, request.TermMonths)
	if err != nil {
		return nil, err
	}

	now := s.now()
	loan := &domain.Loan{
		ID:                 uuid.New(),
		OwnerID:            caller.ID,
		Principal:          principal,
		AnnualRatePercent:  request.AnnualRatePercent,
		TermMonths:         request.TermMonths,
		MonthlyInstallment: utils.RoundCurrency(installment),
		Status:             domain.LoanStatusPendingApproval,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context) error {
		pending, err := s.loanRepo.CountByOwnerAndStatus(ctx, caller.ID, domain.LoanStatusPendingApproval)
		if err != nil {
			return err
		}
		if pending > 0 {
			return customError.WrapDuplicateRequest(caller.ID)
		}

		active, err := s.loanRepo.CountByOwnerAndStatus(ctx, caller.ID, domain.LoanStatusApproved)
		if err != nil {
			return err
		}
		if active > 0 {
			return customError.WrapActiveLoanExists(caller.ID)
		}

		if err := s.loanRepo.Create(ctx, loan); err != nil {
			// the open-loan index caught a concurrent request
			if repository.IsUniqueViolation(err) {
				return customError.WrapDuplicateRequest(caller.ID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"loan_id":  loan.ID,
		"owner_id": loan.OwnerID,
	}).Info("loan requested")

	return loan, nil
}

// ApproveLoan approves a pending loan and materializes its schedule in the same transaction
func (s *LoanService) ApproveLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error) {
	if err := canDecideLoan.check(caller); err != nil {
		return nil, err
	}

	var loan *domain.Loan
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		loan, err = s.pendingLoan(ctx, loanID)
		if err != nil {
			return err
		}

		existing, err := s.installmentRepo.CountByLoanID(ctx, loanID)
		if err != nil {
			return err
		}
		if existing > 0 {
			return customError.WrapScheduleExists(loanID.String())
		}

		now := s.now()
		schedule, err := GenerateSchedule(loan.ID, loan.Principal, loan.AnnualRatePercent, loan.TermMonths, now)
		if err != nil {
			return err
		}

		ok, err := s.loanRepo.TransitionStatus(ctx, loanID, domain.LoanStatusPendingApproval, domain.LoanStatusApproved)
		if err != nil {
			return err
		}
		if !ok {
			return customError.WrapLoanNotInState(loanID.String(), string(domain.LoanStatusPendingApproval))
		}

		if err := s.installmentRepo.CreateSchedule(ctx, schedule); err != nil {
			if repository.IsUniqueViolation(err) {
				return customError.WrapScheduleExists(loanID.String())
			}
			return err
		}

		loan.Status = domain.LoanStatusApproved
		loan.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"loan_id":     loan.ID,
		"term_months": loan.TermMonths,
	}).Info("loan approved")

	return loan, nil
}

// RejectLoan rejects a pending loan
func (s *LoanService) RejectLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error) {
	if err := canDecideLoan.check(caller); err != nil {
		return nil, err
	}

	var loan *domain.Loan
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		loan, err = s.pendingLoan(ctx, loanID)
		if err != nil {
			return err
		}

		ok, err := s.loanRepo.TransitionStatus(ctx, loanID, domain.LoanStatusPendingApproval, domain.LoanStatusRejected)
		if err != nil {
			return err
		}
		if !ok {
			return customError.WrapLoanNotInState(loanID.String(), string(domain.LoanStatusPendingApproval))
		}

		loan.Status = domain.LoanStatusRejected
		loan.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.logger.WithField("loan_id", loan.ID).Info("loan rejected")
	return loan, nil
}

func (s *LoanService) pendingLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, customError.WrapLoanNotFound(loanID.String())
		}
		return nil, err
	}
	if loan.Status != domain.LoanStatusPendingApproval {
		return nil, customError.WrapLoanNotInState(loanID.String(), string(domain.LoanStatusPendingApproval))
	}
	return loan, nil
}

// ListLoans returns the caller's own loans, or every loan awaiting approval for administrators
func (s *LoanService) ListLoans(ctx context.Context, caller domain.Caller) ([]*domain.Loan, error) {
	if err := canViewLoans.check(caller); err != nil {
		return nil, err
	}

	var (
		loans []*domain.Loan
		err   error
	)
	if caller.IsAdministrator() {
		loans, err = s.loanRepo.ListByStatus(ctx, domain.LoanStatusPendingApproval)
	} else {
		loans, err = s.loanRepo.ListByOwner(ctx, caller.ID)
	}
	if err != nil {
		return nil, storageError(err)
	}

	return loans, nil
}

// GetLoan returns a loan visible to the caller. Loans owned by someone else
// are reported as not found to clients.
func (s *LoanService) GetLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error) {
	if err := canViewLoans.check(caller); err != nil {
		return nil, err
	}

	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, customError.WrapLoanNotFound(loanID.String())
		}
		return nil, storageError(err)
	}

	if !caller.IsAdministrator() && !loan.IsOwnedBy(caller.ID) {
		return nil, customError.WrapLoanNotFound(loanID.String())
	}

	return loan, nil
}

// GetSchedule returns the amortization schedule ordered by sequence, served
// from the cache when possible.
func (s *LoanService) GetSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID) ([]*domain.Installment, error) {
	if _, err := s.GetLoan(ctx, caller, loanID); err != nil {
		return nil, err
	}

	if schedule, ok := s.cache.Get(ctx, loanID); ok {
		return schedule, nil
	}

	version := s.cache.Version(ctx, loanID)
	schedule, err := s.loadSchedule(ctx, loanID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, loanID, version, schedule)
	return schedule, nil
}

// CurrentSchedule reads the schedule from the store, bypassing the cache.
// Payments pick the installment to settle from it.
func (s *LoanService) CurrentSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID) ([]*domain.Installment, error) {
	if _, err := s.GetLoan(ctx, caller, loanID); err != nil {
		return nil, err
	}
	return s.loadSchedule(ctx, loanID)
}

func (s *LoanService) loadSchedule(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error) {
	schedule, err := s.installmentRepo.GetScheduleByLoanID(ctx, loanID)
	if err != nil {
		return nil, storageError(err)
	}
	if len(schedule) == 0 {
		return nil, customError.WrapScheduleNotFound(loanID.String())
	}
	return schedule, nil
}

// AdvanceSchedule marks the earliest pending installment paid and closes the
// loan once nothing remains pending. A positive sequence must name that
// installment, otherwise the advance is rejected.
func (s *LoanService) AdvanceSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID, sequence int) (*domain.AdvanceResult, error) {
	if err := canAdvance.check(caller); err != nil {
		return nil, err
	}

	result := &domain.AdvanceResult{Message: domain.MessageInstallmentPaid}
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		loan, err := s.loanRepo.GetByID(ctx, loanID)
		if err != nil {
			if repository.IsNotFound(err) {
				return customError.WrapLoanNotFound(loanID.String())
			}
			return err
		}
		if !caller.IsAdministrator() && !loan.IsOwnedBy(caller.ID) {
			return customError.WrapLoanNotFound(loanID.String())
		}

		switch loan.Status {
		case domain.LoanStatusApproved:
		case domain.LoanStatusPaid:
			return customError.WrapNoPendingInstallment(loanID.String())
		default:
			return customError.WrapLoanNotInState(loanID.String(), string(domain.LoanStatusApproved))
		}

		installment, err := s.installmentRepo.ClaimNextPending(ctx, loanID, sequence, s.now())
		if err != nil {
			if repository.IsNotFound(err) {
				// the caller acted on a schedule that no longer matches the store
				s.cache.Invalidate(ctx, loanID)
				return customError.WrapNoPendingInstallment(loanID.String())
			}
			return err
		}
		result.Installment = installment

		pending, err := s.installmentRepo.CountPending(ctx, loanID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return nil
		}

		ok, err := s.loanRepo.TransitionStatus(ctx, loanID, domain.LoanStatusApproved, domain.LoanStatusPaid)
		if err != nil {
			return err
		}
		if !ok {
			return customError.WrapNoPendingInstallment(loanID.String())
		}

		result.Message = domain.MessageLoanFullyPaid
		result.LoanClosed = true
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.cache.Invalidate(ctx, loanID)

	logger := s.logger.WithFields(logrus.Fields{
		"loan_id":  loanID,
		"sequence": result.Installment.Sequence,
	})
	logger.Info("installment paid")
	if result.LoanClosed {
		logger.Info("loan fully paid")
	}

	return result, nil
}
