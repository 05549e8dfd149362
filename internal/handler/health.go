package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/segyhp/loan-platform/pkg/response"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	db      *sqlx.DB
	redis   *redis.Client
	mode    string
	timeout time.Duration
}

// NewHealthHandler builds the health endpoints; redis may be nil when caching is disabled.
func NewHealthHandler(db *sqlx.DB, redis *redis.Client, mode string, timeout time.Duration) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redis,
		mode:    mode,
		timeout: timeout,
	}
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Mode      string            `json:"mode"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (h *HealthHandler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", h.Ready).Methods(http.MethodGet)
}

// Health performs a basic health check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Mode:      h.mode,
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	response.Success(w, status)
}

// Ready reports 503 until the database answers, the schema is in place and
// Redis, when configured, responds.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Mode:      h.mode,
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := []struct {
		name  string
		check func(context.Context) error
	}{
		{"database", h.db.PingContext},
		{"schema", h.schemaReady},
		{"redis", h.pingRedis},
	}
	for _, c := range checks {
		if err := c.check(ctx); err != nil {
			status.Status = "error"
			status.Checks[c.name] = "failed: " + err.Error()
			continue
		}
		status.Checks[c.name] = "ok"
	}
	if h.redis == nil {
		status.Checks["redis"] = "disabled"
	}

	if status.Status == "error" {
		response.Error(w, http.StatusServiceUnavailable, customError.ErrCodeInternalFailure, "Service not ready")
		return
	}

	response.Success(w, status)
}

func (h *HealthHandler) schemaReady(ctx context.Context) error {
	var n int
	return h.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM loans WHERE 1 = 0")
}

func (h *HealthHandler) pingRedis(ctx context.Context) error {
	if h.redis == nil {
		return nil
	}
	return h.redis.Ping(ctx).Err()
}
