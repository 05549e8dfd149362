package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidLoanTerms     = errors.New("invalid loan terms")
	ErrDuplicateRequest     = errors.New("loan request already awaiting approval")
	ErrActiveLoanExists     = errors.New("active loan exists")
	ErrLoanNotFound         = errors.New("loan not found")
	ErrNoPendingInstallment = errors.New("no pending installment")
	ErrAmountMismatch       = errors.New("payment amount must match the installment amount exactly")
	ErrAmountTooLow         = errors.New("payment amount is lower than the installment amount")
	ErrScheduleExists       = errors.New("amortization schedule already exists")
	ErrIdempotencyConflict  = errors.New("idempotency key conflict")
	ErrInternalFailure      = errors.New("internal failure")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidLoanTerms     = "INVALID_LOAN_TERMS"
	ErrCodeDuplicateRequest     = "DUPLICATE_REQUEST"
	ErrCodeActiveLoanExists     = "ACTIVE_LOAN_EXISTS"
	ErrCodeLoanNotFound         = "LOAN_NOT_FOUND"
	ErrCodeNoPendingInstallment = "NO_PENDING_INSTALLMENT"
	ErrCodeAmountMismatch       = "AMOUNT_MISMATCH"
	ErrCodeAmountTooLow         = "AMOUNT_TOO_LOW"
	ErrCodeScheduleExists       = "SCHEDULE_EXISTS"
	ErrCodeIdempotencyConflict  = "IDEMPOTENCY_CONFLICT"
	ErrCodeInternalFailure      = "INTERNAL_FAILURE"
)

var sentinels = map[string]error{
	ErrCodeUnauthenticated:      ErrUnauthenticated,
	ErrCodeForbidden:            ErrForbidden,
	ErrCodeInvalidRequest:       ErrInvalidRequest,
	ErrCodeInvalidLoanTerms:     ErrInvalidLoanTerms,
	ErrCodeDuplicateRequest:     ErrDuplicateRequest,
	ErrCodeActiveLoanExists:     ErrActiveLoanExists,
	ErrCodeLoanNotFound:         ErrLoanNotFound,
	ErrCodeNoPendingInstallment: ErrNoPendingInstallment,
	ErrCodeAmountMismatch:       ErrAmountMismatch,
	ErrCodeAmountTooLow:         ErrAmountTooLow,
	ErrCodeScheduleExists:       ErrScheduleExists,
	ErrCodeIdempotencyConflict:  ErrIdempotencyConflict,
	ErrCodeInternalFailure:      ErrInternalFailure,
}

// FromCode rebuilds a BusinessError received over the wire. Unknown codes
// collapse into INTERNAL_FAILURE.
func FromCode(code, message string) *BusinessError {
	sentinel, ok := sentinels[code]
	if !ok {
		return NewBusinessError(ErrCodeInternalFailure, message, ErrInternalFailure)
	}
	return NewBusinessError(code, message, sentinel)
}

// CodeOf returns the machine readable code carried by err, INTERNAL_FAILURE
// when err is not a BusinessError.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrCodeInternalFailure
}

func WrapUnauthenticated(reason string) *BusinessError {
	return NewBusinessError(ErrCodeUnauthenticated, reason, ErrUnauthenticated)
}

func WrapForbidden(action string) *BusinessError {
	return NewBusinessError(
		ErrCodeForbidden,
		fmt.Sprintf("Caller is not allowed to %s", action),
		ErrForbidden,
	)
}

func WrapInvalidRequest(message string, err error) *BusinessError {
	if err == nil {
		err = ErrInvalidRequest
	} else {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return NewBusinessError(ErrCodeInvalidRequest, message, err)
}

func WrapInvalidLoanTerms(reason string) *BusinessError {
	return NewBusinessError(ErrCodeInvalidLoanTerms, reason, ErrInvalidLoanTerms)
}

func WrapDuplicateRequest(ownerID string) *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicateRequest,
		fmt.Sprintf("User %s already has a loan awaiting approval", ownerID),
		ErrDuplicateRequest,
	)
}

func WrapActiveLoanExists(ownerID string) *BusinessError {
	return NewBusinessError(
		ErrCodeActiveLoanExists,
		fmt.Sprintf("User %s must pay off the current loan before requesting another", ownerID),
		ErrActiveLoanExists,
	)
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

// WrapLoanNotInState is returned when the loan exists but the transition
// requires a different status.
func WrapLoanNotInState(loanID, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found or not %s", loanID, status),
		ErrLoanNotFound,
	)
}

func WrapScheduleNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s has no amortization schedule", loanID),
		ErrLoanNotFound,
	)
}

func WrapNoPendingInstallment(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeNoPendingInstallment,
		fmt.Sprintf("Loan with ID %s has no pending installment to apply", loanID),
		ErrNoPendingInstallment,
	)
}

func WrapAmountMismatch(expected, actual string) *BusinessError {
	return NewBusinessError(
		ErrCodeAmountMismatch,
		fmt.Sprintf("Payment amount %s does not match expected installment %s", actual, expected),
		ErrAmountMismatch,
	)
}

func WrapAmountTooLow(expected, actual string) *BusinessError {
	return NewBusinessError(
		ErrCodeAmountTooLow,
		fmt.Sprintf("Payment amount %s is lower than the monthly installment of %s", actual, expected),
		ErrAmountTooLow,
	)
}

func WrapScheduleExists(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeScheduleExists,
		fmt.Sprintf("Loan with ID %s already has an amortization schedule", loanID),
		ErrScheduleExists,
	)
}

func WrapIdempotencyConflict(reason string) *BusinessError {
	return NewBusinessError(ErrCodeIdempotencyConflict, reason, ErrIdempotencyConflict)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeInternalFailure,
		"database operation failed",
		err,
	)
}

func WrapTransportError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeInternalFailure,
		"loan service call failed",
		err,
	)
}
