package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		expectedStatus  int
		expectedCode    string
		expectedMessage string
	}{
		{
			name:            "not found",
			err:             customError.WrapLoanNotFound("42"),
			expectedStatus:  http.StatusNotFound,
			expectedCode:    customError.ErrCodeLoanNotFound,
			expectedMessage: "Loan with ID 42 not found",
		},
		{
			name:            "wrapped business error",
			err:             fmt.Errorf("apply: %w", customError.WrapAmountTooLow("106.62", "100.00")),
			expectedStatus:  http.StatusBadRequest,
			expectedCode:    customError.ErrCodeAmountTooLow,
			expectedMessage: "Payment amount 100.00 is lower than the monthly installment of 106.62",
		},
		{
			name:            "schedule exists",
			err:             customError.WrapScheduleExists("42"),
			expectedStatus:  http.StatusConflict,
			expectedCode:    customError.ErrCodeScheduleExists,
			expectedMessage: "Loan with ID 42 already has an amortization schedule",
		},
		{
			name:            "storage failure hides the cause",
			err:             customError.WrapDatabaseError(fmt.Errorf("pq: connection reset")),
			expectedStatus:  http.StatusInternalServerError,
			expectedCode:    customError.ErrCodeInternalFailure,
			expectedMessage: "internal server error",
		},
		{
			name:            "plain error",
			err:             fmt.Errorf("boom"),
			expectedStatus:  http.StatusInternalServerError,
			expectedCode:    customError.ErrCodeInternalFailure,
			expectedMessage: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, tt.err)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.expectedCode, body.Error)
			assert.Equal(t, tt.expectedMessage, body.Message)
		})
	}
}

func TestStatusFor_UnknownCode(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusFor("TEAPOT"))
	assert.Equal(t, http.StatusUnauthorized, StatusFor(customError.ErrCodeUnauthenticated))
	assert.Equal(t, http.StatusConflict, StatusFor(customError.ErrCodeIdempotencyConflict))
}

func TestLoggingMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Created(w, map[string]string{"id": "1"})
	}))

	t.Run("assigns a request id", func(t *testing.T) {
		hook.Reset()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/loans/request", nil))

		id := rec.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, id)
		require.Len(t, hook.Entries, 1)
		assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
		assert.Equal(t, id, hook.LastEntry().Data["request_id"])
		assert.Equal(t, http.StatusCreated, hook.LastEntry().Data["status"])
	})

	t.Run("echoes the caller's request id", func(t *testing.T) {
		hook.Reset()
		req := httptest.NewRequest(http.MethodGet, "/loans", nil)
		req.Header.Set(RequestIDHeader, "req-7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-7", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-7", hook.LastEntry().Data["request_id"])
	})
}
