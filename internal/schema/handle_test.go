package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageHandle_NoIDs(t *testing.T) {
	assert.Nil(t, NewMessageHandle("telegram", "1"))
	assert.Nil(t, NewMessageHandle("telegram", "1", "", ""), "empty ids are not a handle")
}

func TestNewMessageHandle_DropsEmpty(t *testing.T) {
	h := NewMessageHandle("slack", "C1", "1.0", "", "2.0")
	require.NotNil(t, h)
	assert.Equal(t, []string{"1.0", "2.0"}, h.MessageIDs)
	assert.Equal(t, "slack:C1#1.0,2.0", h.String())
}

func TestRole_IsElevated(t *testing.T) {
	assert.True(t, RoleOwner.IsElevated())
	assert.True(t, RoleAdmin.IsElevated())
	assert.False(t, RoleMember.IsElevated())
	assert.False(t, Role("").IsElevated())
}
