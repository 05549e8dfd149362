package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/segyhp/loan-platform/internal/auth"
	"github.com/segyhp/loan-platform/internal/client"
	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testSecret      = "handler-secret"
	testInternalKey = "internal-key"
)

var (
	tokens = auth.NewTokenManager(testSecret)

	clientCaller = domain.Caller{ID: "user-1", Email: "ana@example.com", Role: domain.RoleClient}
	adminCaller  = domain.Caller{ID: "admin-1", Email: "ops@example.com", Role: domain.RoleAdministrator}
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func bearer(t *testing.T, caller domain.Caller) map[string]string {
	t.Helper()
	token, err := tokens.Issue(caller)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func internalBearer(t *testing.T, caller domain.Caller) map[string]string {
	headers := bearer(t, caller)
	headers[client.InternalKeyHeader] = testInternalKey
	return headers
}

// callerMatching matches the caller a handler forwards to its service.
func callerMatching(expected domain.Caller) interface{} {
	return mock.MatchedBy(func(c domain.Caller) bool {
		return c.ID == expected.ID && c.Role == expected.Role && c.Internal == expected.Internal && c.Credential != ""
	})
}

func newRouter(t *testing.T, loans LoanService, payments PaymentService, idempotency func(http.Handler) http.Handler) *mux.Router {
	t.Helper()
	logger, _ := test.NewNullLogger()

	router := mux.NewRouter()
	api := router.NewRoute().Subrouter()
	api.Use(AuthMiddleware(tokens, testInternalKey, logger))
	if loans != nil {
		NewLoanHandler(loans, logger).Register(api)
	}
	if payments != nil {
		NewPaymentHandler(payments, logger).Register(api, idempotency)
	}
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}
