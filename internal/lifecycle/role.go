package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the portal role of an authenticated user.
type Role string

const (
	RoleClient   Role = "client"
	RoleSupplier Role = "supplier"
	RoleAdmin    Role = "admin"
	RoleBank     Role = "bank"
)

var ErrUnknownRole = errors.New("unknown role")

// Roles lists every role.
func Roles() []Role { return []Role{RoleClient, RoleSupplier, RoleAdmin, RoleBank} }

var roleAliases = map[string]Role{
	"client":         RoleClient,
	"customer":       RoleClient,
	"supplier":       RoleSupplier,
	"fournisseur":    RoleSupplier,
	"admin":          RoleAdmin,
	"administrator":  RoleAdmin,
	"administrateur": RoleAdmin,
	"bank":           RoleBank,
	"banque":         RoleBank,
}

// ParseRole accepts the portal role names and the French names the
// backend may use.
func ParseRole(s string) (Role, error) {
	if r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleSupplier, RoleAdmin, RoleBank:
		return true
	}
	return false
}

// Action is a lifecycle step a user may trigger on a quotation.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionReview   Action = "review"
	ActionForward  Action = "forward"
	ActionValidate Action = "validate"
)

var ErrUnknownAction = errors.New("unknown action")

// Actions lists the lifecycle actions in the order they occur.
func Actions() []Action {
	return []Action{ActionSubmit, ActionReview, ActionForward, ActionValidate}
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Actions() {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}
