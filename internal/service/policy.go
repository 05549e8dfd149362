package service

import (
	"fmt"
	"strings"

	"github.com/segyhp/loan-platform/pkg/utils"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/shopspring/decimal"
)

const (
	PolicyExact   = "exact"
	PolicyOverpay = "overpay"
)

// PaymentPolicy decides whether an amount settles an installment due amount
// and how much change is owed back to the payer.
type PaymentPolicy interface {
	Name() string
	Settle(due, amount decimal.Decimal) (change decimal.Decimal, err error)
}

// NewPaymentPolicy returns the policy registered under name.
func NewPaymentPolicy(name string) (PaymentPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyExact:
		return ExactPolicy{}, nil
	case PolicyOverpay:
		return OverpayPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown payment policy %q", name)
}

// ExactPolicy accepts only the installment amount, compared in cents.
type ExactPolicy struct{}

func (ExactPolicy) Name() string { return PolicyExact }

func (ExactPolicy) Settle(due, amount decimal.Decimal) (decimal.Decimal, error) {
	due, amount = utils.RoundCurrency(due), utils.RoundCurrency(amount)
	if !amount.Equal(due) {
		return decimal.Zero, customError.WrapAmountMismatch(due.StringFixed(2), amount.StringFixed(2))
	}
	return decimal.Zero, nil
}

// OverpayPolicy accepts any amount covering the installment. The excess is
// reported as change and is never credited to later installments.
type OverpayPolicy struct{}

func (OverpayPolicy) Name() string { return PolicyOverpay }

func (OverpayPolicy) Settle(due, amount decimal.Decimal) (decimal.Decimal, error) {
	due, amount = utils.RoundCurrency(due), utils.RoundCurrency(amount)
	if amount.LessThan(due) {
		return decimal.Zero, customError.WrapAmountTooLow(due.StringFixed(2), amount.StringFixed(2))
	}
	return amount.Sub(due), nil
}
