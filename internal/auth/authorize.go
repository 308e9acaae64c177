package auth

import (
	"fmt"

	"ledgerd/internal/apperr"
	"ledgerd/internal/models"
)

// Principal is the authenticated caller. It is passed explicitly into every
// operation that needs to know who is asking.
type Principal struct {
	AccountID string
	Email     string
	Roles     []string
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool {
	return p.HasRole(models.RoleAdmin)
}

type Action string

const (
	ActionDeposit          Action = "deposit"
	ActionTransfer         Action = "transfer"
	ActionViewAccount      Action = "view-account"
	ActionViewTransactions Action = "view-transactions"
	ActionUpdateProfile    Action = "update-profile"
	ActionListAccounts     Action = "list-accounts"
	ActionViewAudit        Action = "view-audit"
	ActionReconcile        Action = "reconcile"
)

// Authorize decides whether caller may perform action on the account identified by target.
// Mutations are owner-only; admins may additionally read any account.
func Authorize(caller Principal, action Action, target string) error {
	if caller.AccountID == "" {
		return apperr.ErrAccessDenied
	}
	owner := target != "" && caller.AccountID == target
	switch action {
	case ActionDeposit, ActionTransfer, ActionUpdateProfile:
		if owner {
			return nil
		}
	case ActionViewAccount, ActionViewTransactions:
		if owner || caller.IsAdmin() {
			return nil
		}
	case ActionListAccounts, ActionViewAudit, ActionReconcile:
		if caller.IsAdmin() {
			return nil
		}
	}
	return fmt.Errorf("%w: %s on %q", apperr.ErrAccessDenied, action, target)
}
