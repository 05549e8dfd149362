package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/segyhp/loan-platform/pkg/response"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/sirupsen/logrus"
)

// PaymentService is the payment reconciliation surface served over HTTP.
type PaymentService interface {
	ApplyPayment(ctx context.Context, caller domain.Caller, request *domain.ApplyPaymentRequest) (*domain.PaymentOutcome, error)
	History(ctx context.Context, caller domain.Caller, loanID *uuid.UUID) ([]*domain.Payment, error)
}

type PaymentHandler struct {
	service   PaymentService
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewPaymentHandler(service PaymentService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:   service,
		validator: newValidator(),
		logger:    logger,
	}
}

// Register mounts the payment routes. idempotency wraps the apply route only.
func (h *PaymentHandler) Register(router *mux.Router, idempotency func(http.Handler) http.Handler) {
	var apply http.Handler = http.HandlerFunc(h.ApplyPayment)
	if idempotency != nil {
		apply = idempotency(apply)
	}

	router.Handle("/payments/apply", apply).Methods(http.MethodPost)
	router.HandleFunc("/payments/history", h.History).Methods(http.MethodGet)
}

// ApplyPayment handles POST /payments/apply
func (h *PaymentHandler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req domain.ApplyPaymentRequest
	if err := decodeJSON(r, h.validator, &req, invalidRequest); err != nil {
		response.FromError(w, err)
		return
	}

	outcome, err := h.service.ApplyPayment(r.Context(), caller, &req)
	if err != nil {
		logFailure(h.logger, r, err)
		response.FromError(w, err)
		return
	}

	response.Success(w, outcome)
}

// History handles GET /payments/history with an optional loanId query parameter
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var loanID *uuid.UUID
	if raw := r.URL.Query().Get("loanId"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			response.FromError(w, customError.WrapInvalidRequest("loanId must be a valid UUID", err))
			return
		}
		loanID = &parsed
	}

	payments, err := h.service.History(r.Context(), caller, loanID)
	if err != nil {
		logFailure(h.logger, r, err)
		response.FromError(w, err)
		return
	}

	response.Success(w, payments)
}
