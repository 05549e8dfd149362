package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"

	"github.com/jmoiron/sqlx"
)

const paymentColumns = `id, loan_id, owner_id, amount, installment_sequence, created_at`

type paymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	ext := executor(ctx, r.db)
	_, err := ext.ExecContext(ctx, ext.Rebind(query),
		payment.ID,
		payment.LoanID,
		payment.OwnerID,
		payment.Amount,
		payment.InstallmentSequence,
		payment.CreatedAt,
	)

	return err
}

func (r *paymentRepository) GetByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE loan_id = ?
		ORDER BY created_at DESC, installment_sequence DESC
	`

	ext := executor(ctx, r.db)
	payments := []*domain.Payment{}
	if err := sqlx.SelectContext(ctx, ext, &payments, ext.Rebind(query), loanID); err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *paymentRepository) ListAll(ctx context.Context) ([]*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		ORDER BY created_at DESC, installment_sequence DESC
	`

	ext := executor(ctx, r.db)
	payments := []*domain.Payment{}
	if err := sqlx.SelectContext(ctx, ext, &payments, query); err != nil {
		return nil, err
	}

	return payments, nil
}
