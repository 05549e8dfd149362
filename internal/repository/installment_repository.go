package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"

	"github.com/jmoiron/sqlx"
)

const installmentColumns = `id, loan_id, sequence, due_amount, remaining_balance, due_date, status, paid_at, created_at`

type installmentRepository struct {
	db *sqlx.DB
}

func NewInstallmentRepository(db *sqlx.DB) InstallmentRepository {
	return &installmentRepository{db: db}
}

func (r *installmentRepository) CreateSchedule(ctx context.Context, installments []*domain.Installment) error {
	query := `
		INSERT INTO installments (` + installmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ext := executor(ctx, r.db)
	query = ext.Rebind(query)

	for _, installment := range installments {
		_, err := ext.ExecContext(ctx, query,
			installment.ID,
			installment.LoanID,
			installment.Sequence,
			installment.DueAmount,
			installment.RemainingBalance,
			installment.DueDate,
			installment.Status,
			installment.PaidAt,
			installment.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *installmentRepository) GetScheduleByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM installments
		WHERE loan_id = ?
		ORDER BY sequence
	`

	ext := executor(ctx, r.db)
	installments := []*domain.Installment{}
	if err := sqlx.SelectContext(ctx, ext, &installments, ext.Rebind(query), loanID); err != nil {
		return nil, err
	}

	return installments, nil
}

func (r *installmentRepository) CountByLoanID(ctx context.Context, loanID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM installments WHERE loan_id = ?`, loanID)
}

func (r *installmentRepository) CountPending(ctx context.Context, loanID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM installments WHERE loan_id = ? AND status = ?`,
		loanID, domain.InstallmentStatusPending)
}

func (r *installmentRepository) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	ext := executor(ctx, r.db)
	var count int
	if err := sqlx.GetContext(ctx, ext, &count, ext.Rebind(query), args...); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *installmentRepository) ClaimNextPending(ctx context.Context, loanID uuid.UUID, sequence int, paidAt time.Time) (*domain.Installment, error) {
	ext := executor(ctx, r.db)

	var next sql.NullInt64
	err := sqlx.GetContext(ctx, ext, &next,
		ext.Rebind(`SELECT MIN(sequence) FROM installments WHERE loan_id = ? AND status = ?`),
		loanID, domain.InstallmentStatusPending)
	if err != nil {
		return nil, err
	}
	if !next.Valid || (sequence > 0 && int64(sequence) != next.Int64) {
		return nil, sql.ErrNoRows
	}

	// The status predicate makes the claim conditional: a row already flipped
	// by a concurrent claim matches nothing.
	query := `
		UPDATE installments
		SET status = ?, paid_at = ?
		WHERE loan_id = ? AND sequence = ? AND status = ?
	`
	result, err := ext.ExecContext(ctx, ext.Rebind(query),
		domain.InstallmentStatusPaid, paidAt, loanID, next.Int64, domain.InstallmentStatusPending)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected != 1 {
		return nil, sql.ErrNoRows
	}

	var installment domain.Installment
	err = sqlx.GetContext(ctx, ext, &installment,
		ext.Rebind(`SELECT `+installmentColumns+` FROM installments WHERE loan_id = ? AND sequence = ?`),
		loanID, next.Int64)
	if err != nil {
		return nil, err
	}

	return &installment, nil
}

func (r *installmentRepository) ListOverdue(ctx context.Context, cutoff time.Time) ([]*domain.OverdueInstallment, error) {
	query := `
		SELECT i.loan_id, l.owner_id, i.sequence, i.due_amount, i.due_date
		FROM installments i
		JOIN loans l ON l.id = i.loan_id
		WHERE l.status = ? AND i.status = ? AND i.due_date < ?
		ORDER BY i.due_date, i.loan_id, i.sequence
	`

	ext := executor(ctx, r.db)
	overdue := []*domain.OverdueInstallment{}
	err := sqlx.SelectContext(ctx, ext, &overdue, ext.Rebind(query),
		domain.LoanStatusApproved, domain.InstallmentStatusPending, cutoff)
	if err != nil {
		return nil, err
	}

	return overdue, nil
}
