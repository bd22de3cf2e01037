package ws

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/domain/bridge"
	"github.com/GriffinCanCode/miniapp/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/config"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/shared/clock"
	"github.com/GriffinCanCode/miniapp/internal/shared/paths"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// SDKVersion is the bridge protocol version reported to bundles
const SDKVersion = "1.0"

// tokenTTL bounds locally minted access tokens
const tokenTTL = time.Hour

// hostNamespace scopes the name-based ids this host hands out
var hostNamespace = uuid.MustParse("3f0b8a52-5c1e-4d0b-9a57-8f2f3c6b1e44")

// LocalHost answers bridge capabilities from configuration
type LocalHost struct {
	cfg     config.HostConfig
	session bridge.Session
	layout  paths.Layout
	http    *resty.Client
	clock   clock.Clock
	logger  *zap.Logger
}

// HostOptions configures a LocalHost
type HostOptions struct {
	Logger *zap.Logger
	Clock  clock.Clock
	// HTTP overrides the client used by file downloads
	HTTP *resty.Client
}

// NewLocalHost creates the host of one bundle session
func NewLocalHost(cfg config.HostConfig, session bridge.Session, layout paths.Layout, opts HostOptions) *LocalHost {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.HTTP == nil {
		opts.HTTP = resty.New().SetTimeout(2 * time.Minute)
	}
	return &LocalHost{
		cfg:     cfg,
		session: session,
		layout:  layout,
		http:    opts.HTTP,
		clock:   opts.Clock,
		logger:  logging.OrNop(opts.Logger).Named("host").With(logging.Identity(session.Identity)),
	}
}

func (h *LocalHost) appID() string {
	return h.session.Identity.AppID
}

// UniqueID is stable per host name and app
func (h *LocalHost) UniqueID(context.Context) (string, error) {
	return uuid.NewSHA1(hostNamespace, []byte(h.cfg.Name+"/"+h.appID())).String(), nil
}

// MessagingUniqueID is stable per host name and app, distinct from UniqueID
func (h *LocalHost) MessagingUniqueID(context.Context) (string, error) {
	return uuid.NewSHA1(hostNamespace, []byte(h.cfg.Name+"/messaging/"+h.appID())).String(), nil
}

func (h *LocalHost) EnvironmentInfo(context.Context) (bridge.EnvironmentInfo, error) {
	return bridge.EnvironmentInfo{
		PlatformVersion: runtime.GOOS + "/" + runtime.GOARCH,
		HostVersion:     h.cfg.Name,
		SDKVersion:      SDKVersion,
		HostLocale:      h.cfg.Locale,
	}, nil
}

func (h *LocalHost) RequestDevicePermission(_ context.Context, name string) (bool, error) {
	for _, granted := range h.cfg.DevicePermissions {
		if granted == name {
			return true, nil
		}
	}
	return false, nil
}

// RequestCustomPermissions answers every prompt with the configured policy
func (h *LocalHost) RequestCustomPermissions(_ context.Context, requests []types.PermissionRequest) ([]permission.Decision, error) {
	status := types.GrantDenied
	if h.cfg.AutoGrant {
		status = types.GrantAllowed
	}
	out := make([]permission.Decision, len(requests))
	for i, req := range requests {
		out[i] = permission.Decision{Type: req.Type, Status: status, Description: req.Reason}
	}
	h.logger.Info("answered permission prompt", zap.Int("permissions", len(requests)), zap.String("status", string(status)))
	return out, nil
}

func (h *LocalHost) UserName(context.Context) (string, error) {
	if h.cfg.UserName == "" {
		return "", bridge.Fail(types.BridgeErrHost, "user name is not set")
	}
	return h.cfg.UserName, nil
}

func (h *LocalHost) ProfilePhoto(context.Context) (string, error) {
	if h.cfg.ProfilePhoto == "" {
		return "", bridge.Fail(types.BridgeErrHost, "profile photo is not set")
	}
	return h.cfg.ProfilePhoto, nil
}

func (h *LocalHost) Contacts(context.Context) ([]bridge.Contact, error) {
	return []bridge.Contact{}, nil
}

// AccessToken mints an opaque bearer token for the audience
func (h *LocalHost) AccessToken(_ context.Context, audience string, scopes []string) (bridge.AccessToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return bridge.AccessToken{}, err
	}
	if scopes == nil {
		scopes = []string{}
	}
	return bridge.AccessToken{
		Token:      base64.RawURLEncoding.EncodeToString(raw),
		ValidUntil: h.clock.Now().Add(tokenTTL).UnixMilli(),
		Scopes:     types.AccessTokenScope{Audience: audience, Scopes: scopes},
	}, nil
}

func (h *LocalHost) Points(context.Context) (bridge.Points, error) {
	return bridge.Points{Standard: int64(h.cfg.Points)}, nil
}

// SendMessage delivers to an explicit contact only; there is no picker
func (h *LocalHost) SendMessage(_ context.Context, req bridge.MessageRequest) ([]string, error) {
	if req.ContactID == "" {
		return nil, bridge.Fail(types.BridgeErrHost, "no contact picker available")
	}
	h.logger.Info("message sent", zap.String("contact_id", req.ContactID), zap.Int("length", len(req.Message.Text)))
	return []string{req.ContactID}, nil
}

func (h *LocalHost) ShareInfo(_ context.Context, content string) error {
	h.logger.Info("content shared", zap.Int("length", len(content)))
	return nil
}

func (h *LocalHost) LoadAd(context.Context, bridge.Ad) error {
	return bridge.Fail(types.BridgeErrHost, "ads are not supported")
}

func (h *LocalHost) ShowAd(context.Context, bridge.Ad) (interface{}, error) {
	return nil, bridge.Fail(types.BridgeErrHost, "ads are not supported")
}

// DownloadFile saves the file under the app's downloads directory
func (h *LocalHost) DownloadFile(ctx context.Context, req bridge.FileDownload) (string, error) {
	dir := h.layout.DownloadsDir(h.appID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	target, err := paths.Within(dir, req.FileName)
	if err != nil {
		return "", bridge.Fail(types.BridgeErrUnexpectedFormat, err.Error())
	}

	resp, err := h.http.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetOutput(target).
		Get(req.URL)
	if err != nil {
		_ = os.Remove(target)
		return "", err
	}
	if resp.IsError() {
		_ = os.Remove(target)
		return "", bridge.Fail(types.BridgeErrHost, fmt.Sprintf("download failed with status %d", resp.StatusCode()))
	}
	var size int64
	if info, err := os.Stat(target); err == nil {
		size = info.Size()
	}
	h.logger.Info("file downloaded", logging.Path(target), zap.Int64("bytes", size))
	return req.FileName, nil
}
