package service

import (
	"github.com/segyhp/loan-platform/internal/domain"

	customError "github.com/segyhp/loan-platform/pkg/errors"
)

// capability guards the entry of one operation.
type capability struct {
	action string
	allow  func(caller domain.Caller) bool
}

func allowRoles(roles ...domain.Role) func(domain.Caller) bool {
	return func(caller domain.Caller) bool {
		return caller.HasRole(roles...)
	}
}

var (
	canRequestLoan = capability{"request a loan", allowRoles(domain.RoleClient)}
	canDecideLoan  = capability{"approve or reject loans", allowRoles(domain.RoleAdministrator)}
	canViewLoans   = capability{"view loans", allowRoles(domain.RoleClient, domain.RoleAdministrator)}
	canApplyPay    = capability{"apply payments", allowRoles(domain.RoleClient, domain.RoleAdministrator)}
	canViewHistory = capability{"view payment history", allowRoles(domain.RoleAdministrator)}

	// Clients only advance their schedule through the payments service.
	canAdvance = capability{"advance an amortization schedule", func(caller domain.Caller) bool {
		return caller.IsAdministrator() || (caller.Internal && caller.IsClient())
	}}
)

func (c capability) check(caller domain.Caller) error {
	if caller.ID == "" || caller.Role == "" {
		return customError.WrapUnauthenticated("missing caller identity")
	}
	if !c.allow(caller) {
		return customError.WrapForbidden(c.action)
	}
	return nil
}
