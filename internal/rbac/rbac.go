// Package rbac holds the permission table for team-scoped actions.
package rbac

import "github.com/chunkvault/chunkvault/internal/models"

// Action is an operation kind that requires a team role.
type Action string

const (
	ActionUploadChunk      Action = "upload_chunk"
	ActionDeleteChunk      Action = "delete_chunk"
	ActionDeleteDocument   Action = "delete_document"
	ActionInviteMember     Action = "invite_member"
	ActionKickMember       Action = "kick_member"
	ActionChangeRole       Action = "change_role"
	ActionRotateKeys       Action = "rotate_keys"
	ActionReencryptKeys    Action = "reencrypt_keys"
	ActionRead             Action = "read"
	ActionSync             Action = "sync"
	ActionRegisterEdgeNode Action = "register_edge_node"
	ActionManageEdgeNode   Action = "manage_edge_node"
)

// Can reports whether role may perform action.
//
// Uploading is MEMBER-only: ADMIN is a key-custodian role and is barred from
// writing data. Reads and syncs accept any membership.
func Can(role models.Role, action Action) bool {
	switch action {
	case ActionUploadChunk:
		return role == models.RoleMember
	case ActionRead, ActionSync:
		return role == models.RoleMember || role == models.RoleAdmin
	case ActionDeleteChunk, ActionDeleteDocument,
		ActionInviteMember, ActionKickMember, ActionChangeRole,
		ActionRotateKeys, ActionReencryptKeys,
		ActionRegisterEdgeNode, ActionManageEdgeNode:
		return role == models.RoleAdmin
	default:
		return false
	}
}

// EdgeCan reports whether an edge node bound to the team may perform action.
func EdgeCan(action Action) bool {
	return action == ActionRead || action == ActionSync
}
