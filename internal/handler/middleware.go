package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/segyhp/loan-platform/internal/client"
	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/segyhp/loan-platform/pkg/response"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/sirupsen/logrus"
)

type contextKey string

const callerContextKey contextKey = "caller"

// CredentialVerifier turns a bearer credential into a caller identity.
type CredentialVerifier interface {
	Verify(raw string) (domain.Caller, error)
}

// WithCaller stores caller in ctx.
func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext returns the authenticated caller stored by AuthMiddleware.
func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(domain.Caller)
	return caller, ok
}

// AuthMiddleware rejects requests without a valid bearer credential. A
// matching internal service key marks the caller as internal.
func AuthMiddleware(verifier CredentialVerifier, internalKey string, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				response.FromError(w, customError.WrapUnauthenticated("missing bearer credential"))
				return
			}

			caller, err := verifier.Verify(token)
			if err != nil {
				logger.WithError(err).WithField("path", r.URL.Path).Debug("credential rejected")
				response.FromError(w, err)
				return
			}

			if key := r.Header.Get(client.InternalKeyHeader); key != "" && internalKey != "" {
				caller.Internal = subtle.ConstantTimeCompare([]byte(key), []byte(internalKey)) == 1
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// requireCaller fetches the caller set by AuthMiddleware, answering 401 when absent.
func requireCaller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		response.FromError(w, customError.WrapUnauthenticated("missing caller identity"))
		return domain.Caller{}, false
	}
	return caller, true
}
