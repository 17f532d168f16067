// Package policy is the access gate for posto mutations. Role checks
// live here and nowhere else; callers branch on the returned Decision
// instead of scattering role conditionals.
package policy

import (
	"github.com/postocalmo/backend/internal/domain/entities"
)

// Action is an operation subject to authorization.
type Action string

const (
	ActionReadPosto           Action = "posto.read"
	ActionCreatePosto         Action = "posto.create"
	ActionUpdatePosto         Action = "posto.update"
	ActionDeletePosto         Action = "posto.delete"
	ActionUpdateServiceStatus Action = "posto.update_service_status"
	ActionAddReview           Action = "posto.add_review"
)

// Decision is the outcome of an authorization check. Reason is set only
// when the action is denied and is safe to return to the caller.
type Decision struct {
	Allowed       bool
	Reason        string
	Authenticated bool
}

// allowed is the decision for a permitted action.
var allowed = Decision{Allowed: true, Authenticated: true}

// Authorize decides whether the identity may perform the action.
// Reads are public; adding a review needs any authenticated identity;
// every other mutation needs the admin role. There is no unauthenticated
// creation path.
func Authorize(identity *entities.Identity, action Action) Decision {
	if action == ActionReadPosto {
		return Decision{Allowed: true, Authenticated: identity != nil}
	}

	if identity == nil || identity.UserID == "" || !identity.Role.Valid() {
		return Decision{Allowed: false, Reason: "authentication required", Authenticated: false}
	}

	switch action {
	case ActionAddReview:
		return allowed
	case ActionCreatePosto, ActionUpdatePosto, ActionDeletePosto, ActionUpdateServiceStatus:
		if identity.Role != entities.RoleAdmin {
			return Decision{Allowed: false, Reason: "admin role required", Authenticated: true}
		}
		return allowed
	default:
		return Decision{Allowed: false, Reason: "unknown action", Authenticated: true}
	}
}
