package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/miniapp/internal/domain/bridge"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/config"
	"github.com/GriffinCanCode/miniapp/internal/shared/clock"
	"github.com/GriffinCanCode/miniapp/internal/shared/paths"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

func newHost(t *testing.T, cfg config.HostConfig, appID string) (*LocalHost, paths.Layout) {
	t.Helper()
	layout := paths.New(t.TempDir())
	session := bridge.Session{Identity: types.Identity{AppID: appID, VersionID: "v1"}}
	return NewLocalHost(cfg, session, layout, HostOptions{Logger: zaptest.NewLogger(t)}), layout
}

func TestUniqueIDsAreStable(t *testing.T) {
	ctx := context.Background()
	a, _ := newHost(t, config.HostConfig{Name: "desk"}, "demo")
	b, _ := newHost(t, config.HostConfig{Name: "desk"}, "demo")
	other, _ := newHost(t, config.HostConfig{Name: "desk"}, "other")

	idA, err := a.UniqueID(ctx)
	require.NoError(t, err)
	idB, _ := b.UniqueID(ctx)
	idOther, _ := other.UniqueID(ctx)
	msg, _ := a.MessagingUniqueID(ctx)

	assert.Equal(t, idA, idB)
	assert.NotEqual(t, idA, idOther)
	assert.NotEqual(t, idA, msg)
}

func TestCustomPermissionPolicy(t *testing.T) {
	ctx := context.Background()
	reqs := []types.PermissionRequest{{Type: types.PermissionUserName, Reason: "greeting"}}

	deny, _ := newHost(t, config.HostConfig{}, "demo")
	out, err := deny.RequestCustomPermissions(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.GrantDenied, out[0].Status)
	assert.Equal(t, "greeting", out[0].Description)

	allow, _ := newHost(t, config.HostConfig{AutoGrant: true}, "demo")
	out, err = allow.RequestCustomPermissions(ctx, reqs)
	require.NoError(t, err)
	assert.Equal(t, types.GrantAllowed, out[0].Status)
}

func TestDevicePermissions(t *testing.T) {
	h, _ := newHost(t, config.HostConfig{DevicePermissions: []string{"location"}}, "demo")
	ok, err := h.RequestDevicePermission(context.Background(), "location")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = h.RequestDevicePermission(context.Background(), "camera")
	assert.False(t, ok)
}

func TestAccessToken(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	layout := paths.New(t.TempDir())
	h := NewLocalHost(config.HostConfig{}, bridge.Session{Identity: types.Identity{AppID: "demo", VersionID: "v1"}},
		layout, HostOptions{Clock: clock.Fake(now)})

	tok, err := h.AccessToken(context.Background(), "rae", nil)
	require.NoError(t, err)
	assert.Len(t, tok.Token, 43)
	assert.Equal(t, now.Add(time.Hour).UnixMilli(), tok.ValidUntil)
	assert.Equal(t, "rae", tok.Scopes.Audience)
	assert.NotNil(t, tok.Scopes.Scopes)

	again, _ := h.AccessToken(context.Background(), "rae", nil)
	assert.NotEqual(t, tok.Token, again.Token)
}

func TestProfileFieldsMustBeConfigured(t *testing.T) {
	ctx := context.Background()
	h, _ := newHost(t, config.HostConfig{}, "demo")

	_, err := h.UserName(ctx)
	var failure *bridge.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, types.BridgeErrHost, failure.Type)

	h, _ = newHost(t, config.HostConfig{UserName: "Ada", Points: 12}, "demo")
	name, err := h.UserName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)
	points, _ := h.Points(ctx)
	assert.Equal(t, int64(12), points.Standard)
}

func TestSendMessageNeedsContact(t *testing.T) {
	h, _ := newHost(t, config.HostConfig{}, "demo")
	_, err := h.SendMessage(context.Background(), bridge.MessageRequest{Message: bridge.Message{Text: "hi"}})
	require.Error(t, err)

	sent, err := h.SendMessage(context.Background(), bridge.MessageRequest{ContactID: "c-1", Message: bridge.Message{Text: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1"}, sent)
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		_, _ = w.Write([]byte("report body"))
	}))
	defer srv.Close()

	h, layout := newHost(t, config.HostConfig{}, "demo")
	ctx := context.Background()

	name, err := h.DownloadFile(ctx, bridge.FileDownload{
		FileName: "report.txt",
		URL:      srv.URL + "/report",
		Headers:  map[string]string{"X-Test": "yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, "report.txt", name)
	data, err := os.ReadFile(filepath.Join(layout.DownloadsDir("demo"), "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "report body", string(data))

	_, err = h.DownloadFile(ctx, bridge.FileDownload{FileName: "gone.txt", URL: srv.URL + "/missing"})
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(layout.DownloadsDir("demo"), "gone.txt"))

	_, err = h.DownloadFile(ctx, bridge.FileDownload{FileName: "../escape.txt", URL: srv.URL + "/report"})
	require.Error(t, err)
}

func TestAdsUnsupported(t *testing.T) {
	h, _ := newHost(t, config.HostConfig{}, "demo")
	assert.Error(t, h.LoadAd(context.Background(), bridge.Ad{Type: "banner"}))
	_, err := h.ShowAd(context.Background(), bridge.Ad{Type: "banner"})
	assert.Error(t, err)
}
