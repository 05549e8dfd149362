package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/segyhp/loan-platform/pkg/response"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/sirupsen/logrus"
)

// LoanService is the loan lifecycle surface served over HTTP.
type LoanService interface {
	RequestLoan(ctx context.Context, caller domain.Caller, request *domain.CreateLoanRequest) (*domain.Loan, error)
	ApproveLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error)
	RejectLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error)
	ListLoans(ctx context.Context, caller domain.Caller) ([]*domain.Loan, error)
	GetLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error)
	GetSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID) ([]*domain.Installment, error)
	CurrentSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID) ([]*domain.Installment, error)
	AdvanceSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID, sequence int) (*domain.AdvanceResult, error)
}

type LoanHandler struct {
	service   LoanService
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewLoanHandler(service LoanService, logger *logrus.Logger) *LoanHandler {
	return &LoanHandler{
		service:   service,
		validator: newValidator(),
		logger:    logger,
	}
}

// Register mounts the loan routes. Literal paths are registered before /loans/{id}.
func (h *LoanHandler) Register(router *mux.Router) {
	router.HandleFunc("/loans/request", h.RequestLoan).Methods(http.MethodPost)
	router.HandleFunc("/loans/approve", h.ApproveLoan).Methods(http.MethodPut)
	router.HandleFunc("/loans/reject", h.RejectLoan).Methods(http.MethodPut)
	router.HandleFunc("/loans/amortization/advance", h.AdvanceSchedule).Methods(http.MethodPut)
	router.HandleFunc("/loans/amortization/{loanId}", h.GetSchedule).Methods(http.MethodGet)
	router.HandleFunc("/loans", h.ListLoans).Methods(http.MethodGet)
	router.HandleFunc("/loans/{id}", h.GetLoan).Methods(http.MethodGet)
}

// RequestLoan handles POST /loans/request
func (h *LoanHandler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req domain.CreateLoanRequest
	if err := decodeJSON(r, h.validator, &req, invalidLoanTerms); err != nil {
		response.FromError(w, err)
		return
	}

	loan, err := h.service.RequestLoan(r.Context(), caller, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Created(w, loan)
}

// ApproveLoan handles PUT /loans/approve
func (h *LoanHandler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.ApproveLoan)
}

// RejectLoan handles PUT /loans/reject
func (h *LoanHandler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.RejectLoan)
}

func (h *LoanHandler) decide(w http.ResponseWriter, r *http.Request, decision func(context.Context, domain.Caller, uuid.UUID) (*domain.Loan, error)) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req domain.LoanDecisionRequest
	if err := decodeJSON(r, h.validator, &req, invalidRequest); err != nil {
		response.FromError(w, err)
		return
	}

	loan, err := decision(r.Context(), caller, uuid.MustParse(req.LoanID))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, loan)
}

// ListLoans handles GET /loans
func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	loans, err := h.service.ListLoans(r.Context(), caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(loans) == 0 {
		response.NotFound(w, "No loans found")
		return
	}

	response.Success(w, loans)
}

// GetLoan handles GET /loans/{id}
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	loanID, ok := loanIDFromPath(w, r, "id")
	if !ok {
		return
	}

	loan, err := h.service.GetLoan(r.Context(), caller, loanID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, loan)
}

// GetSchedule handles GET /loans/amortization/{loanId}. Cache-Control: no-cache
// skips the schedule cache.
func (h *LoanHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	loanID, ok := loanIDFromPath(w, r, "loanId")
	if !ok {
		return
	}

	read := h.service.GetSchedule
	if strings.Contains(r.Header.Get("Cache-Control"), "no-cache") {
		read = h.service.CurrentSchedule
	}

	schedule, err := read(r.Context(), caller, loanID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, schedule)
}

// AdvanceSchedule handles PUT /loans/amortization/advance
func (h *LoanHandler) AdvanceSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req domain.AdvanceScheduleRequest
	if err := decodeJSON(r, h.validator, &req, invalidRequest); err != nil {
		response.FromError(w, err)
		return
	}

	result, err := h.service.AdvanceSchedule(r.Context(), caller, uuid.MustParse(req.LoanID), req.Sequence)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, result)
}

func (h *LoanHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	logFailure(h.logger, r, err)
	response.FromError(w, err)
}

// loanIDFromPath parses a path id; malformed ids cannot name a loan.
func loanIDFromPath(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := mux.Vars(r)[name]
	loanID, err := uuid.Parse(raw)
	if err != nil {
		response.FromError(w, customError.WrapLoanNotFound(raw))
		return uuid.Nil, false
	}
	return loanID, true
}

// logFailure logs internal failures at error and everything else at debug.
func logFailure(logger *logrus.Logger, r *http.Request, err error) {
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"code":   customError.CodeOf(err),
	})
	if customError.CodeOf(err) == customError.ErrCodeInternalFailure {
		entry.Error("request failed")
		return
	}
	entry.Debug("request rejected")
}
