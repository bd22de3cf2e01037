package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/miniapp/internal/storage"
)

// FastPolicy keeps the exponential shape with millisecond delays
func FastPolicy() httpclient.Policy {
	return httpclient.Policy{BaseDelay: time.Millisecond, Multiplier: 2, MaxAttempts: 5}
}

// NewHTTPClient returns a client with a fast retry policy and a breaker
// that never trips
func NewHTTPClient(t testing.TB, logger *zap.Logger) *httpclient.Client {
	t.Helper()
	return httpclient.New(httpclient.Options{
		Timeout: 5 * time.Second,
		Policy:  FastPolicy(),
		Breaker: resilience.Settings{
			ReadyToTrip: func(resilience.Counts) bool { return false },
		},
		Logger: logger,
	})
}

// NewStore returns a memory-backed store sealed with a fixed secret
func NewStore(t testing.TB) (*storage.Store, *storage.MemoryBackend) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	sealer, err := storage.NewAEADSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return storage.New(backend, sealer, storage.Options{}), backend
}

// SimpleVersion returns a small two-file bundle version
func SimpleVersion(appID, versionID string) *Version {
	return &Version{
		AppID:       appID,
		VersionID:   versionID,
		VersionTag:  "1.0." + versionID,
		DisplayName: "App " + appID,
		Files: map[string][]byte{
			"index.html":    []byte("<html><body>" + appID + "@" + versionID + "</body></html>"),
			"js/app.js":     []byte("console.log('" + versionID + "');"),
			"css/style.css": []byte("body { margin: 0; }"),
		},
	}
}
