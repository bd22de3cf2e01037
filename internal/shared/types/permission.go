package types

import "time"

// PermissionType names a custom permission a bundle may request
type PermissionType string

const (
	PermissionUserName     PermissionType = "miniapp.user.USER_NAME"
	PermissionProfilePhoto PermissionType = "miniapp.user.PROFILE_PHOTO"
	PermissionContactList  PermissionType = "miniapp.user.CONTACT_LIST"
	PermissionAccessToken  PermissionType = "miniapp.user.ACCESS_TOKEN"
	PermissionPoints       PermissionType = "miniapp.user.POINTS"
	PermissionLocation     PermissionType = "miniapp.device.LOCATION"
	PermissionSendMessage  PermissionType = "miniapp.user.SEND_MESSAGE"
	PermissionFileDownload PermissionType = "miniapp.device.FILE_DOWNLOAD"
)

var knownPermissions = map[PermissionType]bool{
	PermissionUserName:     true,
	PermissionProfilePhoto: true,
	PermissionContactList:  true,
	PermissionAccessToken:  true,
	PermissionPoints:       true,
	PermissionLocation:     true,
	PermissionSendMessage:  true,
	PermissionFileDownload: true,
}

// Known reports whether the permission belongs to the fixed taxonomy
func (p PermissionType) Known() bool {
	return knownPermissions[p]
}

// KnownPermissions returns the fixed taxonomy
func KnownPermissions() []PermissionType {
	return []PermissionType{
		PermissionUserName,
		PermissionProfilePhoto,
		PermissionContactList,
		PermissionAccessToken,
		PermissionPoints,
		PermissionLocation,
		PermissionSendMessage,
		PermissionFileDownload,
	}
}

// GrantStatus is the recorded decision for one permission
type GrantStatus string

const (
	GrantAllowed     GrantStatus = "ALLOWED"
	GrantDenied      GrantStatus = "DENIED"
	GrantUnavailable GrantStatus = "PERMISSION_NOT_AVAILABLE"
)

// Valid reports whether the status is one of the three recorded values
func (s GrantStatus) Valid() bool {
	switch s {
	case GrantAllowed, GrantDenied, GrantUnavailable:
		return true
	}
	return false
}

// Grant represents the host/user decision for one permission of one app
type Grant struct {
	Type        PermissionType `json:"name" msgpack:"type"`
	Status      GrantStatus    `json:"status" msgpack:"status"`
	Description string         `json:"description,omitempty" msgpack:"description"`
	UpdatedAt   time.Time      `json:"updatedAt" msgpack:"updated_at"`
}

// PermissionRequest is a declared permission with the reason shown to the user
type PermissionRequest struct {
	Type   PermissionType `json:"name" msgpack:"type"`
	Reason string         `json:"reason,omitempty" msgpack:"reason"`
}
