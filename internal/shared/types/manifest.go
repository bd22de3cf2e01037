package types

// AccessTokenScope lists the scopes a bundle may request for one audience
type AccessTokenScope struct {
	Audience string   `json:"audience" msgpack:"audience"`
	Scopes   []string `json:"scopes" msgpack:"scopes"`
}

// Manifest is the declarative permission/metadata payload of a bundle version
type Manifest struct {
	VersionID           string              `json:"versionId" msgpack:"version_id"`
	RequiredPermissions []PermissionRequest `json:"reqPermissions" msgpack:"required"`
	OptionalPermissions []PermissionRequest `json:"optPermissions" msgpack:"optional"`
	AccessTokenScopes   []AccessTokenScope  `json:"accessTokenPermissions" msgpack:"access_token_scopes"`
	CustomMetaData      map[string]string   `json:"customMetaData" msgpack:"custom_meta_data"`
}

// Required returns the required permission set
func (m *Manifest) Required() []PermissionType {
	return permissionTypes(m.RequiredPermissions)
}

// Optional returns the optional permission set
func (m *Manifest) Optional() []PermissionType {
	return permissionTypes(m.OptionalPermissions)
}

// Declares reports whether p is required or optional in this manifest
func (m *Manifest) Declares(p PermissionType) bool {
	for _, req := range m.RequiredPermissions {
		if req.Type == p {
			return true
		}
	}
	for _, opt := range m.OptionalPermissions {
		if opt.Type == p {
			return true
		}
	}
	return false
}

// Requests returns required and optional requests, required first, deduplicated
func (m *Manifest) Requests() []PermissionRequest {
	seen := make(map[PermissionType]bool)
	out := make([]PermissionRequest, 0, len(m.RequiredPermissions)+len(m.OptionalPermissions))
	for _, list := range [][]PermissionRequest{m.RequiredPermissions, m.OptionalPermissions} {
		for _, req := range list {
			if seen[req.Type] {
				continue
			}
			seen[req.Type] = true
			out = append(out, req)
		}
	}
	return out
}

// Scope returns the declared scopes for an audience
func (m *Manifest) Scope(audience string) (AccessTokenScope, bool) {
	for _, s := range m.AccessTokenScopes {
		if s.Audience == audience {
			return s, true
		}
	}
	return AccessTokenScope{}, false
}

func permissionTypes(reqs []PermissionRequest) []PermissionType {
	out := make([]PermissionType, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Type)
	}
	return out
}
