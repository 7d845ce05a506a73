package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemaline/internal/domain"
)

func TestScopeModels(t *testing.T) {
	all := NewPermissionSet("*").ScopeModels(ActionView)
	assert.True(t, all.All)
	assert.True(t, all.Contains("anything"))

	scoped := NewPermissionSet("model:view:a", "model:view:b", "model:delete:c", "model:view:").ScopeModels(ActionView)
	assert.False(t, scoped.All)
	assert.Equal(t, []string{"a", "b"}, scoped.IDs())
	assert.False(t, scoped.Contains("c"))

	actionWide := NewPermissionSet("model:edit:*").ScopeModels(ActionEdit)
	assert.True(t, actionWide.All)

	assert.Empty(t, NewPermissionSet().ScopeModels(ActionView).IDs())
}

func TestWildcardSupersedesScopes(t *testing.T) {
	a := Actor{ID: "u1", Permissions: NewPermissionSet("*")}
	assert.NoError(t, a.Require(ActionDelete, "m"))
	assert.NoError(t, a.RequireAdmin())
}

func TestRequireOnObjectOwnerFallback(t *testing.T) {
	owner := "u1"
	other := "u2"
	a := Actor{ID: "u1", Permissions: NewPermissionSet("model:create:m")}

	assert.NoError(t, a.RequireOnObject(ActionEdit, "m", &owner))
	assert.NoError(t, a.RequireOnObject(ActionView, "m", &owner))
	err := a.RequireOnObject(ActionEdit, "m", &other)
	require.Error(t, err)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
	assert.EqualError(t, err, "permission model:edit:m required")

	assert.Error(t, a.RequireOnObject(ActionCreate, "x", &owner), "create is not owner gated")

	anon := Anonymous(NewPermissionSet())
	empty := ""
	assert.Error(t, anon.RequireOnObject(ActionView, "m", &empty))
	assert.Nil(t, anon.OwnerID())
}

func TestRequireAdmin(t *testing.T) {
	assert.Error(t, Actor{ID: "u", Permissions: NewPermissionSet("model:view:m")}.RequireAdmin())
	assert.NoError(t, Actor{ID: "u", Permissions: NewPermissionSet("model:admin")}.RequireAdmin())
}
