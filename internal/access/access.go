// Package access evaluates whether the current user may read or mutate a
// document. Four grant sources are consulted in a fixed order: document
// creator, public flag, explicit share, workspace membership. Denial is a
// normal return value, never an error.
package access

import "inkwell/client/internal/identity"

type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Level orders roles for capability checks. Unknown roles rank below viewer.
func (r Role) Level() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	case RoleOwner:
		return 4
	default:
		return 0
	}
}

// Normalize maps an arbitrary role string onto the known set, defaulting to
// viewer for anything unrecognized.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin, RoleOwner:
		return Role(role)
	default:
		return RoleViewer
	}
}

// Via names which grant source satisfied an access check.
type Via string

const (
	ViaCreator   Via = "creator"
	ViaPublic    Via = "public"
	ViaShare     Via = "share"
	ViaWorkspace Via = "workspace"
)

// Share is an explicit per-user grant on a document, independent of any
// workspace membership.
type Share struct {
	PrincipalID string
	Role        Role
}

// Member is a role-carrying workspace membership entry.
type Member struct {
	UserID string
	Role   Role
}

// GrantContext carries everything a single access check needs. It is built
// per check from already-loaded records and never persisted.
type GrantContext struct {
	DocumentCreatorID string
	CurrentUserID     string
	IsPublic          bool
	Shares            []Share
	Members           []Member
}

// Decision is the outcome of Resolve. When Granted is false the remaining
// fields are zero.
type Decision struct {
	Granted bool
	Via     Via
	Role    Role

	// ownerOverride records that the user is the document creator or a
	// workspace owner. Ownership is a structural fact: it satisfies
	// owner-level capability checks even when a lower-role share for the
	// same user happens to be on record.
	ownerOverride bool
}

// Resolve evaluates the four grant sources in priority order; the first match
// wins. Creator and public are unconditional bypasses; shares are checked
// before workspace membership because a user may hold a share on a document
// in a workspace they are not a member of.
func Resolve(ctx GrantContext) Decision {
	override := isCreator(ctx) || isWorkspaceOwner(ctx)

	if isCreator(ctx) {
		return Decision{Granted: true, Via: ViaCreator, Role: RoleOwner, ownerOverride: true}
	}
	if ctx.IsPublic {
		return Decision{Granted: true, Via: ViaPublic, Role: RoleViewer, ownerOverride: override}
	}
	for _, share := range ctx.Shares {
		if identity.SameEntity(share.PrincipalID, ctx.CurrentUserID) {
			return Decision{Granted: true, Via: ViaShare, Role: share.Role, ownerOverride: override}
		}
	}
	for _, m := range ctx.Members {
		if identity.SameEntity(m.UserID, ctx.CurrentUserID) {
			return Decision{Granted: true, Via: ViaWorkspace, Role: m.Role, ownerOverride: override}
		}
	}
	return Decision{}
}

// CanMutate reports whether the decision's role satisfies the required role.
// Creators and workspace owners pass every check.
func CanMutate(d Decision, required Role) bool {
	if !d.Granted {
		return false
	}
	if d.ownerOverride {
		return true
	}
	return d.Role.Level() >= required.Level()
}

func isCreator(ctx GrantContext) bool {
	return identity.SameEntity(ctx.DocumentCreatorID, ctx.CurrentUserID)
}

func isWorkspaceOwner(ctx GrantContext) bool {
	for _, m := range ctx.Members {
		if m.Role == RoleOwner && identity.SameEntity(m.UserID, ctx.CurrentUserID) {
			return true
		}
	}
	return false
}
