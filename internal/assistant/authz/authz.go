// Package authz decides whether a role may perform an intent. Both
// entry points are pure functions: no I/O, no suspension.
package authz

import (
	"fmt"
	"strings"

	"crm-assistant/internal/assistant/intent"
	stderrors "crm-assistant/internal/common/errors"
)

// Role is one step of the fixed hierarchy.
type Role string

const (
	RoleApplicant   Role = "applicant"
	RoleViewer      Role = "viewer"
	RoleBookkeeper  Role = "bookkeeper"
	RoleStaff       Role = "staff"
	RoleAdmin       Role = "admin"
	RoleMasterAdmin Role = "master-admin"
)

// ParseRole resolves a role claim case-insensitively.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleApplicant:
		return RoleApplicant, true
	case RoleViewer:
		return RoleViewer, true
	case RoleBookkeeper:
		return RoleBookkeeper, true
	case RoleStaff:
		return RoleStaff, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleMasterAdmin:
		return RoleMasterAdmin, true
	}
	return "", false
}

// Tier orders the hierarchy. Bookkeeper and staff share the mutation
// tier; the gap above them is admin, then master-admin at the apex.
func (r Role) Tier() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleBookkeeper, RoleStaff:
		return 2
	case RoleAdmin:
		return 3
	case RoleMasterAdmin:
		return 4
	default:
		return 0
	}
}

// Caller is the authenticated identity making the request. The
// IsMasterAdmin flag marks the apex holder independently of the role
// string so a mislabeled claim cannot demote it.
type Caller struct {
	UserID        string
	Role          Role
	IsMasterAdmin bool
}

func (c Caller) masterAdmin() bool {
	return c.IsMasterAdmin || c.Role == RoleMasterAdmin
}

// Decision is the gate's verdict. Reason is machine-checkable so
// callers can distinguish denial causes for UI messaging.
type Decision struct {
	Allowed bool
	Reason  stderrors.DenyReason
	Detail  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason stderrors.DenyReason, detail string) Decision {
	return Decision{Allowed: false, Reason: reason, Detail: detail}
}

// mutatingIntents covers every add/update/delete across entities, plus
// interaction logging which writes a record.
var mutatingIntents = map[intent.Tag]bool{
	intent.AddContact:          true,
	intent.UpdateContact:       true,
	intent.DeleteContact:       true,
	intent.LogInteraction:      true,
	intent.AddExpenseReport:    true,
	intent.UpdateExpenseReport: true,
	intent.DeleteExpenseReport: true,
	intent.SetUserRole:         true,
	intent.DeleteUser:          true,
}

// userAdminIntents additionally require admin tier.
var userAdminIntents = map[intent.Tag]bool{
	intent.SetUserRole: true,
	intent.DeleteUser:  true,
}

// IsMutating reports whether the intent writes data.
func IsMutating(tag intent.Tag) bool {
	return mutatingIntents[tag]
}

// Authorize applies the role/intent policy. Read-only intents are open
// to any authenticated role; mutations need the staff tier; user
// administration needs the admin tier. Target-sensitive hierarchy
// rules live in AuthorizeUserMutation.
func Authorize(caller Caller, tag intent.Tag) Decision {
	if userAdminIntents[tag] {
		if caller.masterAdmin() || caller.Role.Tier() >= RoleAdmin.Tier() {
			return allow()
		}
		return deny(stderrors.DenyInsufficientRole,
			fmt.Sprintf("role %q may not administer users", caller.Role))
	}

	if mutatingIntents[tag] {
		if caller.Role.Tier() >= RoleStaff.Tier() {
			return allow()
		}
		return deny(stderrors.DenyInsufficientRole,
			fmt.Sprintf("role %q may not perform %s", caller.Role, tag))
	}

	// Read-only intents and the general fallback.
	return allow()
}

// AuthorizeUserMutation applies the target-sensitive hierarchy rules
// for SET_USER_ROLE and DELETE_USER, after the target account has been
// resolved. newRole is empty for deletions.
//
// A master-admin account can never be modified or deleted, regardless
// of caller. Below the apex: only a master-admin touches admin-tier
// accounts, and a regular admin may only move a target between the
// applicant and viewer tiers.
func AuthorizeUserMutation(caller Caller, targetRole Role, targetIsMasterAdmin bool, newRole Role) Decision {
	if targetIsMasterAdmin || targetRole == RoleMasterAdmin {
		return deny(stderrors.DenyProtectedTarget, "master-admin accounts cannot be modified or deleted")
	}

	if caller.masterAdmin() {
		return allow()
	}

	if targetRole.Tier() >= RoleAdmin.Tier() {
		return deny(stderrors.DenyProtectedTarget,
			fmt.Sprintf("only a master-admin may modify a %s account", targetRole))
	}

	if newRole != "" {
		lowTier := func(r Role) bool { return r == RoleApplicant || r == RoleViewer }
		if !lowTier(targetRole) || !lowTier(newRole) {
			return deny(stderrors.DenyDisallowedTransition,
				fmt.Sprintf("transition %s -> %s requires a master-admin", targetRole, newRole))
		}
	}

	return allow()
}
