package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var statusByCode = map[string]int{
	customError.ErrCodeUnauthenticated:      http.StatusUnauthorized,
	customError.ErrCodeForbidden:            http.StatusForbidden,
	customError.ErrCodeInvalidRequest:       http.StatusBadRequest,
	customError.ErrCodeInvalidLoanTerms:     http.StatusBadRequest,
	customError.ErrCodeDuplicateRequest:     http.StatusBadRequest,
	customError.ErrCodeActiveLoanExists:     http.StatusBadRequest,
	customError.ErrCodeLoanNotFound:         http.StatusNotFound,
	customError.ErrCodeNoPendingInstallment: http.StatusNotFound,
	customError.ErrCodeAmountMismatch:       http.StatusBadRequest,
	customError.ErrCodeAmountTooLow:         http.StatusBadRequest,
	customError.ErrCodeScheduleExists:       http.StatusConflict,
	customError.ErrCodeIdempotencyConflict:  http.StatusConflict,
	customError.ErrCodeInternalFailure:      http.StatusInternalServerError,
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response := Response{
		Success:   statusCode >= 200 && statusCode < 300,
		Data:      data,
		Timestamp: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logrus.Errorf("Error encoding JSON response: %v", err)
	}
}

// Success sends a successful JSON response
func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// Created sends a created JSON response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// Error sends an error JSON response carrying a machine readable code
func Error(w http.ResponseWriter, statusCode int, code, message string) {
	response := ErrorResponse{
		Success:   false,
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		logrus.Errorf("Error encoding error response: %v", encodeErr)
	}
}

// FromError writes err using the status mapped from its business code.
// Internal failures never leak the underlying cause to the caller.
func FromError(w http.ResponseWriter, err error) {
	var be *customError.BusinessError
	if !errors.As(err, &be) {
		Error(w, http.StatusInternalServerError, customError.ErrCodeInternalFailure, "internal server error")
		return
	}
	status := StatusFor(be.Code)
	message := be.Message
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	Error(w, status, be.Code, message)
}

// BadRequest sends a 400 bad request response
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, customError.ErrCodeInvalidRequest, message)
}

// NotFound sends a 404 not found response
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, customError.ErrCodeLoanNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, customError.ErrCodeUnauthenticated, message)
}

// Forbidden sends a 403 forbidden response
func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, customError.ErrCodeForbidden, message)
}

// RequestIDHeader carries the id that ties a request to its log line.
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware logs HTTP requests, echoing or assigning a request id.
func LoggingMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			entry := logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     recorder.statusCode,
				"duration":   time.Since(start).String(),
			})
			if recorder.statusCode >= http.StatusInternalServerError {
				entry.Warn("request handled")
				return
			}
			entry.Info("request handled")
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *responseRecorder) WriteHeader(statusCode int) {
	rec.statusCode = statusCode
	rec.ResponseWriter.WriteHeader(statusCode)
}
