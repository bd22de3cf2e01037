package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/miniapp/internal/app"
	"github.com/GriffinCanCode/miniapp/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/config"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/testutil"
)

type fixture struct {
	router   *gin.Engine
	platform *testutil.Platform
	runtime  *app.Runtime
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p := testutil.NewPlatform(t)
	cfg := config.Default()
	cfg.Platform.BaseURL = p.URL()
	cfg.Platform.HostID = testutil.HostID
	cfg.Cache.Dir = t.TempDir()
	cfg.Download.SignatureMode = config.SignatureOff
	cfg.Download.MaxAttempts = 1

	store, _ := testutil.NewStore(t)
	rt, err := app.New(cfg, app.Options{Logger: zaptest.NewLogger(t), Store: store})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	r := gin.New()
	NewHandlers(rt).Register(r)
	return &fixture{router: r, platform: p, runtime: rt}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		data, err := sonic.Marshal(body)
		require.NoError(t, err)
		buf.Write(data)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func errorKind(out map[string]interface{}) string {
	body, _ := out["error"].(map[string]interface{})
	kind, _ := body["kind"].(string)
	return kind
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w, out := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, "closed", out["breaker"])
	assert.Equal(t, 0.0, out["in_flight"])
}

func TestListAndGetApp(t *testing.T) {
	f := newFixture(t)
	f.platform.Publish(testutil.SimpleVersion("demo", "v1"))

	w, out := f.do(t, http.MethodGet, "/v1/apps", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["apps"], 1)

	w, out = f.do(t, http.MethodGet, "/v1/apps/demo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["listing"], 1)
	assert.Empty(t, out["records"])
	assert.Equal(t, false, out["offline"])

	w, out = f.do(t, http.MethodGet, "/v1/apps/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.KindNotFound), errorKind(out))
}

func TestGetAppOfflineWithRecords(t *testing.T) {
	f := newFixture(t)
	f.platform.Publish(testutil.SimpleVersion("demo", "v1"))
	w, _ := f.do(t, http.MethodPost, "/v1/apps/demo/load", nil)
	require.Equal(t, http.StatusOK, w.Code)

	f.platform.Offline()
	w, out := f.do(t, http.MethodGet, "/v1/apps/demo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["offline"])
	assert.Len(t, out["records"], 1)

	w, out = f.do(t, http.MethodGet, "/v1/apps/other", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, string(types.KindOffline), errorKind(out))
}

func TestLoadConsentFlow(t *testing.T) {
	f := newFixture(t)
	v := testutil.SimpleVersion("demo", "v1")
	v.Required = []types.PermissionRequest{{Type: types.PermissionUserName, Reason: "greeting"}}
	v.Optional = []types.PermissionRequest{{Type: types.PermissionPoints}}
	f.platform.Publish(v)

	w, _ := f.do(t, http.MethodGet, "/v1/apps/demo/permissions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, out := f.do(t, http.MethodPost, "/v1/apps/demo/load", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(types.KindMetaDataFailure), errorKind(out))
	assert.Contains(t, out["error"].(map[string]interface{})["missing"], string(types.PermissionUserName))
	assert.NotNil(t, out["result"])

	w, out = f.do(t, http.MethodGet, "/v1/apps/demo/permissions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out["grants"])
	assert.Len(t, out["pending"], 2)

	w, out = f.do(t, http.MethodPut, "/v1/apps/demo/permissions", DecisionsRequest{
		Decisions: []permission.Decision{{Type: types.PermissionUserName, Status: types.GrantAllowed}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["grants"], 1)

	w, out = f.do(t, http.MethodPost, "/v1/apps/demo/load", nil)
	require.Equal(t, http.StatusOK, w.Code, fmt.Sprint(out))
	assert.Equal(t, false, out["fallback"])
}

func TestPutPermissionsRejectsBadBody(t *testing.T) {
	f := newFixture(t)
	w, out := f.do(t, http.MethodPut, "/v1/apps/demo/permissions", map[string]interface{}{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(types.KindUnavailable), errorKind(out))

	w, out = f.do(t, http.MethodGet, "/v1/apps/bad%20id!/permissions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.KindInvalidAppID), errorKind(out))
}

func TestLoadUnknownApp(t *testing.T) {
	f := newFixture(t)
	w, out := f.do(t, http.MethodPost, "/v1/apps/ghost/load", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.KindNotFound), errorKind(out))
}

func TestCollect(t *testing.T) {
	f := newFixture(t)
	w, out := f.do(t, http.MethodPost, "/v1/gc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, out["staging"])
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{types.ErrInvalidAppID, http.StatusBadRequest},
		{types.ErrNoPublishedVersion, http.StatusNotFound},
		{types.ErrMetaDataFailure, http.StatusConflict},
		{types.ErrOffline, http.StatusServiceUnavailable},
		{types.ErrCorrupted, http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", types.ErrTooManyRequests), http.StatusTooManyRequests},
		{context.Canceled, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), tt.err.Error())
	}
}
