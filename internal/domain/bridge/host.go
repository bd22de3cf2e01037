package bridge

import (
	"context"

	"github.com/GriffinCanCode/miniapp/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// Host is the capability interface a host application provides. Every
// method may block on user interaction; implementations must honor ctx.
type Host interface {
	UniqueID(ctx context.Context) (string, error)
	MessagingUniqueID(ctx context.Context) (string, error)
	EnvironmentInfo(ctx context.Context) (EnvironmentInfo, error)
	// RequestDevicePermission asks the device for an OS-level permission
	// such as "location"
	RequestDevicePermission(ctx context.Context, name string) (bool, error)
	// RequestCustomPermissions shows the consent prompt for declared
	// permissions and returns the user's decisions
	RequestCustomPermissions(ctx context.Context, requests []types.PermissionRequest) ([]permission.Decision, error)
	UserName(ctx context.Context) (string, error)
	ProfilePhoto(ctx context.Context) (string, error)
	Contacts(ctx context.Context) ([]Contact, error)
	AccessToken(ctx context.Context, audience string, scopes []string) (AccessToken, error)
	Points(ctx context.Context) (Points, error)
	SendMessage(ctx context.Context, req MessageRequest) ([]string, error)
	ShareInfo(ctx context.Context, content string) error
	LoadAd(ctx context.Context, ad Ad) error
	ShowAd(ctx context.Context, ad Ad) (interface{}, error)
	DownloadFile(ctx context.Context, req FileDownload) (string, error)
}

// EnvironmentInfo describes the host to bundle code
type EnvironmentInfo struct {
	PlatformVersion string `json:"platformVersion"`
	HostVersion     string `json:"hostVersion"`
	SDKVersion      string `json:"sdkVersion"`
	HostLocale      string `json:"hostLocale"`
}

// Contact is one entry of the user's contact list
type Contact struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	AllEmailList []string `json:"allEmailList,omitempty"`
}

// AccessToken is a host-issued token for one audience
type AccessToken struct {
	Token      string                 `json:"token"`
	ValidUntil int64                  `json:"validUntil"` // unix millis
	Scopes     types.AccessTokenScope `json:"scopes"`
}

// Points is the user's loyalty balance
type Points struct {
	Standard int64 `json:"standard"`
	Term     int64 `json:"term"`
	Cash     int64 `json:"cash"`
}

// Message is the content bundle code asks the host to send
type Message struct {
	Text          string `json:"text"`
	Image         string `json:"image,omitempty"`
	Caption       string `json:"caption,omitempty"`
	Action        string `json:"action,omitempty"`
	BannerMessage string `json:"bannerMessage,omitempty"`
}

// MessageRequest selects the recipients of a Message. With no ContactID
// the host lets the user pick one contact, or several when Multiple is set.
type MessageRequest struct {
	Message   Message
	ContactID string
	Multiple  bool
}

// Ad identifies one ad unit
type Ad struct {
	Type   string `json:"adType"`
	UnitID string `json:"adUnitId"`
}

// FileDownload asks the host to save a remote file
type FileDownload struct {
	FileName string            `json:"filename"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Failure is a typed host failure reported to bundle code as-is
type Failure struct {
	Type    types.BridgeErrorType
	Message string
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return string(f.Type)
	}
	return string(f.Type) + ": " + f.Message
}

// Fail creates a Failure
func Fail(kind types.BridgeErrorType, message string) *Failure {
	return &Failure{Type: kind, Message: message}
}
