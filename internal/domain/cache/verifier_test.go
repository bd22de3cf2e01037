package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp/internal/shared/paths"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/shared/utils"
)

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func newVerifier(t *testing.T, ignore ...string) (*Verifier, paths.Layout) {
	t.Helper()
	layout := paths.New(t.TempDir())
	v, err := New(Options{Layout: layout, Ignore: ignore})
	require.NoError(t, err)
	return v, layout
}

var sample = map[string]string{
	"index.html":       "<html></html>",
	"js/app.js":        "console.log(1)",
	"js/vendor/lib.js": "lib",
	"css/site.css":     "body{}",
}

func TestHashIsDeterministic(t *testing.T) {
	v, _ := newVerifier(t)
	a, b := t.TempDir(), t.TempDir()
	writeTree(t, a, sample)
	writeTree(t, b, sample)

	ha, err := v.Hash(context.Background(), a)
	require.NoError(t, err)
	hb, err := v.Hash(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestHashDetectsChanges(t *testing.T) {
	v, _ := newVerifier(t)
	dir := t.TempDir()
	writeTree(t, dir, sample)
	base, err := v.Hash(context.Background(), dir)
	require.NoError(t, err)

	writeTree(t, dir, map[string]string{"js/app.js": "console.log(2)"})
	changed, err := v.Hash(context.Background(), dir)
	require.NoError(t, err)
	assert.NotEqual(t, base, changed)

	// renaming a file with identical content still changes the hash
	other := t.TempDir()
	writeTree(t, other, map[string]string{"a.txt": "x"})
	h1, err := v.Hash(context.Background(), other)
	require.NoError(t, err)
	require.NoError(t, os.Rename(filepath.Join(other, "a.txt"), filepath.Join(other, "b.txt")))
	h2, err := v.Hash(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestFilesSortedAndIgnored(t *testing.T) {
	v, _ := newVerifier(t, "**/.DS_Store", "*.map")
	dir := t.TempDir()
	writeTree(t, dir, sample)
	writeTree(t, dir, map[string]string{".DS_Store": "x", "js/.DS_Store": "x", "app.js.map": "{}"})

	files, err := v.Files(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"css/site.css", "index.html", "js/app.js", "js/vendor/lib.js"}, files)
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New(Options{Layout: paths.New(t.TempDir()), Ignore: []string{"[unterminated"}})
	assert.Error(t, err)
}

func TestFilesRejectsSymlinks(t *testing.T) {
	v, _ := newVerifier(t)
	dir := t.TempDir()
	writeTree(t, dir, sample)
	if err := os.Symlink("/etc/hosts", filepath.Join(dir, "link")); err != nil {
		t.Skip("symlinks unsupported:", err)
	}
	_, err := v.Files(context.Background(), dir)
	assert.ErrorIs(t, err, types.ErrCorrupted)
}

func TestVerify(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	layout := paths.New(t.TempDir())
	v, err := New(Options{Layout: layout, Metrics: metrics})
	require.NoError(t, err)
	ctx := context.Background()

	id := types.Identity{AppID: "demo", VersionID: "v1"}
	writeTree(t, layout.VersionDir(id), sample)
	sum, err := v.Hash(ctx, layout.VersionDir(id))
	require.NoError(t, err)

	rec := types.CachedVersionRecord{
		AppID: id.AppID, VersionID: id.VersionID,
		Downloaded: true, ContentHash: sum, HashAlgorithm: string(v.Algorithm()),
	}
	ok, err := v.Verify(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	writeTree(t, layout.VersionDir(id), map[string]string{"index.html": "tampered"})
	ok, err = v.Verify(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok)

	rec.Downloaded = false
	ok, err = v.Verify(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, v.Purge(id))
	rec.Downloaded = true
	ok, err = v.Verify(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues(LookupHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues(LookupMismatch)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues(LookupMiss)))
}

func TestVerifyUsesRecordedAlgorithm(t *testing.T) {
	layout := paths.New(t.TempDir())
	blake, err := New(Options{Layout: layout, Hasher: utils.NewHasher(utils.BLAKE3)})
	require.NoError(t, err)
	sha, err := New(Options{Layout: layout})
	require.NoError(t, err)

	id := types.Identity{AppID: "demo", VersionID: "v1"}
	writeTree(t, layout.VersionDir(id), sample)
	sum, err := blake.Hash(context.Background(), layout.VersionDir(id))
	require.NoError(t, err)

	ok, err := sha.Verify(context.Background(), types.CachedVersionRecord{
		AppID: "demo", VersionID: "v1", Downloaded: true,
		ContentHash: sum, HashAlgorithm: string(utils.BLAKE3),
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPurgeOthers(t *testing.T) {
	v, layout := newVerifier(t)
	for _, version := range []string{"v1", "v2", "v3"} {
		writeTree(t, layout.VersionDir(types.Identity{AppID: "demo", VersionID: version}), sample)
	}
	writeTree(t, layout.VersionDir(types.Identity{AppID: "other", VersionID: "v1"}), sample)

	removed, err := v.PurgeOthers(types.Identity{AppID: "demo", VersionID: "v2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v3"}, removed)

	versions, err := v.VersionIDs("demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, versions)

	apps, err := v.AppIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"demo", "other"}, apps)

	require.NoError(t, v.PurgeApp("other"))
	apps, err = v.AppIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, apps)

	none, err := v.VersionIDs("never-downloaded")
	require.NoError(t, err)
	assert.Empty(t, none)
}
