package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ScheduleCache keeps amortization schedules in Redis. A nil cache, or one
// built without a client, is a no-op. Cache faults are logged, never returned.
type ScheduleCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewScheduleCache(redis *redis.Client, ttl time.Duration, logger *logrus.Logger) *ScheduleCache {
	return &ScheduleCache{
		redis:  redis,
		ttl:    ttl,
		logger: logger,
	}
}

func scheduleKey(loanID uuid.UUID) string {
	return fmt.Sprintf("loan:%s:schedule", loanID)
}

// versionKey counts invalidations; a schedule read before an invalidation
// must not be written back after it.
func versionKey(loanID uuid.UUID) string {
	return fmt.Sprintf("loan:%s:schedule:version", loanID)
}

func (c *ScheduleCache) enabled() bool {
	return c != nil && c.redis != nil
}

// Get returns the cached schedule and whether it was found.
func (c *ScheduleCache) Get(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, bool) {
	if !c.enabled() {
		return nil, false
	}

	raw, err := c.redis.Get(ctx, scheduleKey(loanID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("loan_id", loanID).Warn("schedule cache read failed")
		}
		return nil, false
	}

	var schedule []*domain.Installment
	if err := json.Unmarshal(raw, &schedule); err != nil {
		c.logger.WithError(err).WithField("loan_id", loanID).Warn("discarding corrupt cached schedule")
		c.Invalidate(ctx, loanID)
		return nil, false
	}
	return schedule, true
}

// Version returns the invalidation counter to pass to Set. It is read before
// the schedule is loaded from the store.
func (c *ScheduleCache) Version(ctx context.Context, loanID uuid.UUID) int64 {
	if !c.enabled() {
		return 0
	}

	version, err := c.redis.Get(ctx, versionKey(loanID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.WithError(err).WithField("loan_id", loanID).Warn("schedule cache version read failed")
		return -1
	}
	return version
}

// Set stores schedule unless the loan was invalidated since version was read.
func (c *ScheduleCache) Set(ctx context.Context, loanID uuid.UUID, version int64, schedule []*domain.Installment) {
	if !c.enabled() || version < 0 {
		return
	}

	raw, err := json.Marshal(schedule)
	if err != nil {
		c.logger.WithError(err).WithField("loan_id", loanID).Warn("schedule cache encode failed")
		return
	}

	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey(loanID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, scheduleKey(loanID), raw, c.ttl)
			return nil
		})
		return err
	}, versionKey(loanID))
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		c.logger.WithError(err).WithField("loan_id", loanID).Warn("schedule cache write failed")
	}
}

// Invalidate drops the cached schedule and bumps its version.
func (c *ScheduleCache) Invalidate(ctx context.Context, loanID uuid.UUID) {
	if !c.enabled() {
		return
	}

	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, scheduleKey(loanID))
		pipe.Incr(ctx, versionKey(loanID))
		if c.ttl > 0 {
			pipe.Expire(ctx, versionKey(loanID), 2*c.ttl)
		}
		return nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("loan_id", loanID).Warn("schedule cache invalidation failed")
	}
}
