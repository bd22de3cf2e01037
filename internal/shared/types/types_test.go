package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityValidate(t *testing.T) {
	tests := []struct {
		name     string
		identity Identity
		kind     ErrorKind
	}{
		{"valid", Identity{AppID: "app-1", VersionID: "ver_2.0"}, ""},
		{"empty app", Identity{VersionID: "v"}, KindInvalidAppID},
		{"traversal app", Identity{AppID: "..", VersionID: "v"}, KindInvalidAppID},
		{"slash app", Identity{AppID: "a/b", VersionID: "v"}, KindInvalidAppID},
		{"empty version", Identity{AppID: "a"}, KindInvalidVersionID},
		{"dot version", Identity{AppID: "a", VersionID: "."}, KindInvalidVersionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.identity.Validate()
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestIdentityString(t *testing.T) {
	assert.Equal(t, "app@v1", Identity{AppID: "app", VersionID: "v1"}.String())
}

func TestManifestRequests(t *testing.T) {
	m := &Manifest{
		RequiredPermissions: []PermissionRequest{{Type: PermissionUserName}, {Type: PermissionContactList}},
		OptionalPermissions: []PermissionRequest{{Type: PermissionUserName}, {Type: PermissionLocation}},
		AccessTokenScopes:   []AccessTokenScope{{Audience: "aud", Scopes: []string{"read"}}},
	}

	assert.Equal(t, []PermissionType{PermissionUserName, PermissionContactList}, m.Required())
	assert.Equal(t, []PermissionType{PermissionUserName, PermissionLocation}, m.Optional())
	assert.True(t, m.Declares(PermissionLocation))
	assert.False(t, m.Declares(PermissionPoints))

	reqs := m.Requests()
	assert.Len(t, reqs, 3)
	assert.Equal(t, PermissionUserName, reqs[0].Type)

	scope, ok := m.Scope("aud")
	assert.True(t, ok)
	assert.Equal(t, []string{"read"}, scope.Scopes)
	_, ok = m.Scope("other")
	assert.False(t, ok)
}

func TestPermissionTaxonomy(t *testing.T) {
	for _, p := range KnownPermissions() {
		assert.True(t, p.Known(), p)
	}
	assert.False(t, PermissionType("miniapp.user.SHOE_SIZE").Known())

	assert.True(t, GrantAllowed.Valid())
	assert.False(t, GrantStatus("MAYBE").Valid())
}
