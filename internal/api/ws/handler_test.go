package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/miniapp/internal/domain/bridge"
	"github.com/GriffinCanCode/miniapp/internal/domain/loader"
	"github.com/GriffinCanCode/miniapp/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/config"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp/internal/shared/paths"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/testutil"
)

type loaderFunc func(ctx context.Context, appID, versionID string) (*loader.Result, error)

func (f loaderFunc) Load(ctx context.Context, appID, versionID string) (*loader.Result, error) {
	return f(ctx, appID, versionID)
}

type wireResponse struct {
	ID      string             `json:"id"`
	Status  types.BridgeStatus `json:"status"`
	Payload interface{}        `json:"payload"`
}

func readyLoader(manifest *types.Manifest) Loader {
	return loaderFunc(func(_ context.Context, appID, versionID string) (*loader.Result, error) {
		if versionID == "" {
			versionID = "v1"
		}
		id := types.Identity{AppID: appID, VersionID: versionID}
		return &loader.Result{Bundle: types.Bundle{Identity: id}, Manifest: manifest}, nil
	})
}

func newServer(t *testing.T, l Loader) (*httptest.Server, *monitoring.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	store, _ := testutil.NewStore(t)
	engine := permission.New(store, permission.Options{Logger: logger})
	layout := paths.New(t.TempDir())

	hosts := func(session bridge.Session) bridge.Host {
		return NewLocalHost(config.HostConfig{Name: "test", UserName: "Ada"}, session, layout, HostOptions{Logger: logger})
	}
	h := NewHandler(l, engine, hosts, Options{Logger: logger, Metrics: metrics})

	r := gin.New()
	r.GET("/v1/apps/:appId/bridge", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, metrics
}

func dial(t *testing.T, srv *httptest.Server, appID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/apps/" + appID + "/bridge"
	return websocket.DefaultDialer.Dial(url, nil)
}

func roundTrip(t *testing.T, conn *websocket.Conn, frame string) wireResponse {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var resp wireResponse
	require.NoError(t, sonic.Unmarshal(data, &resp))
	return resp
}

func TestBridgeServesUngatedAction(t *testing.T) {
	srv, metrics := newServer(t, readyLoader(&types.Manifest{VersionID: "v1"}))
	conn, _, err := dial(t, srv, "demo")
	require.NoError(t, err)
	defer conn.Close()

	resp := roundTrip(t, conn, `{"id":"1","action":"getUniqueId"}`)
	assert.Equal(t, "1", resp.ID)
	assert.Equal(t, types.StatusSuccess, resp.Status)
	assert.NotEmpty(t, resp.Payload)

	again := roundTrip(t, conn, `{"id":"2","action":"getUniqueId"}`)
	assert.Equal(t, resp.Payload, again.Payload)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.WSConnections))
}

func TestBridgeGatesOnGrants(t *testing.T) {
	manifest := &types.Manifest{
		VersionID:           "v1",
		OptionalPermissions: []types.PermissionRequest{{Type: types.PermissionUserName}},
	}
	srv, _ := newServer(t, readyLoader(manifest))
	conn, _, err := dial(t, srv, "demo")
	require.NoError(t, err)
	defer conn.Close()

	resp := roundTrip(t, conn, `{"id":"n","action":"getUserName"}`)
	assert.Equal(t, types.StatusError, resp.Status)
	payload, ok := resp.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(types.BridgeErrPermissionDenied), payload["type"])
}

func TestBridgeAnswersMalformedFrames(t *testing.T) {
	srv, _ := newServer(t, readyLoader(nil))
	conn, _, err := dial(t, srv, "demo")
	require.NoError(t, err)
	defer conn.Close()

	resp := roundTrip(t, conn, `{"id":"bad"`)
	assert.Equal(t, types.StatusError, resp.Status)
	payload := resp.Payload.(map[string]interface{})
	assert.Equal(t, string(types.BridgeErrUnexpectedFormat), payload["type"])

	// the connection stays usable
	ok := roundTrip(t, conn, `{"id":"3","action":"getHostEnvironmentInfo"}`)
	assert.Equal(t, types.StatusSuccess, ok.Status)
}

func TestBridgeRefusedWhenLoadFails(t *testing.T) {
	l := loaderFunc(func(context.Context, string, string) (*loader.Result, error) {
		return nil, types.ErrNoPublishedVersion
	})
	srv, metrics := newServer(t, l)

	_, resp, err := dial(t, srv, "demo")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0.0, promtest.ToFloat64(metrics.WSConnections))
}

func TestBridgeReleasesConnectionOnClose(t *testing.T) {
	srv, metrics := newServer(t, readyLoader(nil))
	conn, _, err := dial(t, srv, "demo")
	require.NoError(t, err)
	roundTrip(t, conn, `{"id":"1","action":"getUniqueId"}`)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool {
		return promtest.ToFloat64(metrics.WSConnections) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

type brokenPayload struct{}

func (brokenPayload) MarshalJSON() ([]byte, error) { return nil, errors.New("broken") }

func TestEncodeResponseFallsBackToHostError(t *testing.T) {
	data, err := encodeResponse(types.BridgeResponse{ID: "7", Status: types.StatusSuccess, Payload: brokenPayload{}})
	require.Error(t, err)
	require.NotNil(t, data)

	var frame struct {
		ID      string            `json:"id"`
		Status  string            `json:"status"`
		Payload types.BridgeError `json:"payload"`
	}
	require.NoError(t, sonic.Unmarshal(data, &frame))
	assert.Equal(t, "7", frame.ID)
	assert.Equal(t, string(types.StatusError), frame.Status)
	assert.Equal(t, types.BridgeErrHost, frame.Payload.Type)

	data, err = encodeResponse(types.BridgeResponse{ID: "8", Status: types.StatusSuccess, Payload: map[string]int{"n": 1}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"n":1`)
}
