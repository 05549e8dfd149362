package service

import (
	"context"
	"time"

	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/segyhp/loan-platform/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DigestMailer delivers an overdue digest.
type DigestMailer interface {
	SendOverdueDigest(ctx context.Context, digest *domain.OverdueDigest) error
}

// OverdueReporter finds installments past their grace period. It only reads.
type OverdueReporter struct {
	installmentRepo repository.InstallmentRepository
	graceDays       int
	mailer          DigestMailer
	logger          *logrus.Logger
	now             func() time.Time
}

// NewOverdueReporter builds a reporter; mailer may be nil to only log digests.
func NewOverdueReporter(
	installmentRepo repository.InstallmentRepository,
	graceDays int,
	mailer DigestMailer,
	logger *logrus.Logger,
) *OverdueReporter {
	return &OverdueReporter{
		installmentRepo: installmentRepo,
		graceDays:       graceDays,
		mailer:          mailer,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Run builds one digest and sends it when anything is overdue.
func (r *OverdueReporter) Run(ctx context.Context) (*domain.OverdueDigest, error) {
	now := r.now()
	cutoff := now.AddDate(0, 0, -r.graceDays)

	overdue, err := r.installmentRepo.ListOverdue(ctx, cutoff)
	if err != nil {
		return nil, storageError(err)
	}

	digest := &domain.OverdueDigest{
		GeneratedAt:  now,
		Cutoff:       cutoff,
		Installments: overdue,
		TotalDue:     decimal.Zero,
	}
	for _, installment := range overdue {
		digest.TotalDue = digest.TotalDue.Add(installment.DueAmount)
	}

	logger := r.logger.WithFields(logrus.Fields{
		"installments": len(overdue),
		"loans":        digest.Loans(),
		"total_due":    digest.TotalDue.StringFixed(2),
		"cutoff":       cutoff.Format(time.RFC3339),
	})
	if len(overdue) == 0 {
		logger.Info("no overdue installments")
		return digest, nil
	}
	logger.Warn("overdue installments found")

	if r.mailer != nil {
		if err := r.mailer.SendOverdueDigest(ctx, digest); err != nil {
			r.logger.WithError(err).Error("failed to send overdue digest")
			return digest, err
		}
	}

	return digest, nil
}
