package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"

	"github.com/jmoiron/sqlx"
)

const loanColumns = `id, owner_id, principal, annual_rate_percent, term_months, monthly_installment, status, created_at, updated_at`

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ext := executor(ctx, r.db)
	_, err := ext.ExecContext(ctx, ext.Rebind(query),
		loan.ID,
		loan.OwnerID,
		loan.Principal,
		loan.AnnualRatePercent,
		loan.TermMonths,
		loan.MonthlyInstallment,
		loan.Status,
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	return err
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = ?
	`

	ext := executor(ctx, r.db)
	var loan domain.Loan
	if err := sqlx.GetContext(ctx, ext, &loan, ext.Rebind(query), id); err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`

	ext := executor(ctx, r.db)
	loans := []*domain.Loan{}
	if err := sqlx.SelectContext(ctx, ext, &loans, ext.Rebind(query), ownerID); err != nil {
		return nil, err
	}

	return loans, nil
}

func (r *loanRepository) ListByStatus(ctx context.Context, status domain.LoanStatus) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE status = ?
		ORDER BY created_at
	`

	ext := executor(ctx, r.db)
	loans := []*domain.Loan{}
	if err := sqlx.SelectContext(ctx, ext, &loans, ext.Rebind(query), status); err != nil {
		return nil, err
	}

	return loans, nil
}

func (r *loanRepository) CountByOwnerAndStatus(ctx context.Context, ownerID string, status domain.LoanStatus) (int, error) {
	query := `SELECT COUNT(*) FROM loans WHERE owner_id = ? AND status = ?`

	ext := executor(ctx, r.db)
	var count int
	if err := sqlx.GetContext(ctx, ext, &count, ext.Rebind(query), ownerID, status); err != nil {
		return 0, err
	}

	return count, nil
}

func (r *loanRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.LoanStatus) (bool, error) {
	query := `
		UPDATE loans
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	ext := executor(ctx, r.db)
	result, err := ext.ExecContext(ctx, ext.Rebind(query), to, time.Now().UTC(), id, from)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}
