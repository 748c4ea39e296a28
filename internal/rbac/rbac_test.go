package rbac

import (
	"testing"

	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCan(t *testing.T) {
	tests := []struct {
		role   models.Role
		action Action
		want   bool
	}{
		{models.RoleMember, ActionUploadChunk, true},
		{models.RoleAdmin, ActionUploadChunk, false},
		{models.RoleMember, ActionDeleteChunk, false},
		{models.RoleAdmin, ActionDeleteChunk, true},
		{models.RoleAdmin, ActionDeleteDocument, true},
		{models.RoleMember, ActionDeleteDocument, false},
		{models.RoleAdmin, ActionInviteMember, true},
		{models.RoleMember, ActionInviteMember, false},
		{models.RoleAdmin, ActionKickMember, true},
		{models.RoleMember, ActionKickMember, false},
		{models.RoleAdmin, ActionChangeRole, true},
		{models.RoleMember, ActionChangeRole, false},
		{models.RoleAdmin, ActionRotateKeys, true},
		{models.RoleMember, ActionRotateKeys, false},
		{models.RoleAdmin, ActionReencryptKeys, true},
		{models.RoleMember, ActionReencryptKeys, false},
		{models.RoleMember, ActionRead, true},
		{models.RoleAdmin, ActionRead, true},
		{models.RoleMember, ActionSync, true},
		{models.RoleAdmin, ActionSync, true},
		{models.RoleAdmin, ActionRegisterEdgeNode, true},
		{models.RoleMember, ActionRegisterEdgeNode, false},
		{models.Role("GUEST"), ActionRead, false},
		{models.RoleAdmin, Action("unknown"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Can(tt.role, tt.action), "role=%s action=%s", tt.role, tt.action)
	}
}

func TestEdgeCanOnlyReads(t *testing.T) {
	assert.True(t, EdgeCan(ActionRead))
	assert.True(t, EdgeCan(ActionSync))
	assert.False(t, EdgeCan(ActionUploadChunk))
	assert.False(t, EdgeCan(ActionDeleteChunk))
	assert.False(t, EdgeCan(ActionRotateKeys))
}
