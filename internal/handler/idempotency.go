package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/segyhp/loan-platform/pkg/response"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"

	// how long a request may hold the in-progress marker
	provisionalLockTTL = 60 * time.Second
	maxIdempotencyKey  = 128
	storeTimeout       = 2 * time.Second
)

type idempotencyEntry struct {
	InProgress bool      `json:"in_progress"`
	Code       int       `json:"code"`
	Body       []byte    `json:"body"`
	BodySHA256 string    `json:"body_sha256"`
	CreatedAt  time.Time `json:"created_at"`
}

type bodyRecorder struct {
	http.ResponseWriter
	buf  bytes.Buffer
	code int
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) WriteHeader(statusCode int) {
	r.code = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// IdempotencyMiddleware replays the stored response of a request repeated with
// the same Idempotency-Key and body. Requests without the header pass through.
// It runs after AuthMiddleware so keys are scoped to the caller.
func IdempotencyMiddleware(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idemKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if rdb == nil || idemKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(idemKey) > maxIdempotencyKey {
				response.FromError(w, customError.WrapInvalidRequest("Idempotency-Key is too long", nil))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				response.FromError(w, customError.WrapInvalidRequest("Invalid request body", err))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := bodyHash(body)

			callerID := ""
			if caller, ok := CallerFromContext(r.Context()); ok {
				callerID = caller.ID
			}
			key := idempotencyKey(r.Method, r.URL.Path, callerID, idemKey)

			ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
			defer cancel()

			acquired, err := provisionalSet(ctx, rdb, key, idempotencyEntry{
				InProgress: true,
				BodySHA256: hash,
				CreatedAt:  time.Now().UTC(),
			})
			if err != nil {
				logger.WithError(err).Error("idempotency store unavailable")
				response.Error(w, http.StatusServiceUnavailable, customError.ErrCodeInternalFailure, "idempotency store unavailable")
				return
			}

			if !acquired {
				current, err := loadEntry(ctx, rdb, key)
				if err != nil && !errors.Is(err, redis.Nil) {
					logger.WithError(err).WithField("key", key).Warn("failed to load idempotency entry")
				}
				if current.BodySHA256 != "" && current.BodySHA256 != hash {
					response.FromError(w, customError.WrapIdempotencyConflict("Idempotency-Key reused with a different body"))
					return
				}
				if !current.InProgress && current.Code != 0 && len(current.Body) > 0 {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("Idempotent-Replayed", "true")
					w.WriteHeader(current.Code)
					_, _ = w.Write(current.Body)
					return
				}
				response.FromError(w, customError.WrapIdempotencyConflict("A request with this Idempotency-Key is already in progress"))
				return
			}

			rec := &bodyRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)

			// server faults are not remembered so the client can retry
			storeCtx, storeCancel := context.WithTimeout(context.Background(), storeTimeout)
			defer storeCancel()
			if rec.code >= http.StatusInternalServerError {
				if err := rdb.Del(storeCtx, key).Err(); err != nil {
					logger.WithError(err).WithField("key", key).Warn("failed to release idempotency key")
				}
				return
			}

			err = saveFinal(storeCtx, rdb, key, idempotencyEntry{
				Code:       rec.code,
				Body:       rec.buf.Bytes(),
				BodySHA256: hash,
				CreatedAt:  time.Now().UTC(),
			}, ttl)
			if err != nil {
				logger.WithError(err).WithField("key", key).Warn("failed to store idempotent response")
			}
		})
	}
}

func bodyHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func idempotencyKey(method, path, callerID, key string) string {
	return "idemp:" + strings.ToLower(method) + ":" + path + ":" + callerID + ":" + key
}

func provisionalSet(ctx context.Context, rdb *redis.Client, key string, entry idempotencyEntry) (bool, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, key, payload, provisionalLockTTL).Result()
}

func loadEntry(ctx context.Context, rdb *redis.Client, key string) (idempotencyEntry, error) {
	var entry idempotencyEntry
	raw, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return entry, err
	}
	err = json.Unmarshal(raw, &entry)
	return entry, err
}

func saveFinal(ctx context.Context, rdb *redis.Client, key string, entry idempotencyEntry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, payload, ttl).Err()
}
