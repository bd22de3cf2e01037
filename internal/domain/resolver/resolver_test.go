package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/miniapp/internal/platform"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/testutil"
)

func setup(t *testing.T, preview bool) (*Resolver, *testutil.Platform) {
	t.Helper()
	p := testutil.NewPlatform(t)
	client, err := platform.New(testutil.NewHTTPClient(t, nil), platform.Options{
		BaseURL: p.URL(), HostID: testutil.HostID, Preview: preview,
	}, nil)
	require.NoError(t, err)
	store, _ := testutil.NewStore(t)
	return New(client, store, Options{Preview: preview}), p
}

func TestResolve(t *testing.T) {
	r, p := setup(t, false)
	p.Publish(testutil.SimpleVersion("demo", "v1"))
	ctx := context.Background()

	info, err := r.Resolve(ctx, "demo", "")
	require.NoError(t, err)
	assert.Equal(t, types.Identity{AppID: "demo", VersionID: "v1"}, info.Identity())

	p.Publish(testutil.SimpleVersion("demo", "v2"))
	info, err = r.Resolve(ctx, "demo", "v1")
	require.NoError(t, err)
	assert.Equal(t, "v2", info.Version.VersionID, "backend's current version wins over the request")
}

func TestResolveErrors(t *testing.T) {
	r, p := setup(t, false)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "", "")
	assert.ErrorIs(t, err, types.ErrInvalidAppID)

	_, err = r.Resolve(ctx, "ghost", "")
	assert.ErrorIs(t, err, types.ErrNotFound)

	p.Publish(testutil.SimpleVersion("retired", "v1"))
	p.Unpublish("retired")
	_, err = r.Resolve(ctx, "retired", "")
	assert.ErrorIs(t, err, types.ErrNoPublishedVersion)
}

func TestList(t *testing.T) {
	r, p := setup(t, false)
	p.Publish(testutil.SimpleVersion("a", "v1"))
	p.Publish(testutil.SimpleVersion("b", "v1"))

	all, err := r.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := r.List(context.Background(), "b")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "b", one[0].ID)
}

func TestManifestCachedUntilVersionChanges(t *testing.T) {
	r, p := setup(t, false)
	v1 := testutil.SimpleVersion("demo", "v1")
	v1.Required = []types.PermissionRequest{{Type: types.PermissionUserName}}
	p.Publish(v1)
	ctx := context.Background()

	m, err := r.Manifest(ctx, v1.Identity())
	require.NoError(t, err)
	assert.Equal(t, []types.PermissionType{types.PermissionUserName}, m.Required())

	m, err = r.Manifest(ctx, v1.Identity())
	require.NoError(t, err)
	assert.Equal(t, "v1", m.VersionID)
	assert.Equal(t, 1, p.HitsWithSuffix("/metadata"), "second read is served from the store")

	v2 := testutil.SimpleVersion("demo", "v2")
	v2.Required = []types.PermissionRequest{{Type: types.PermissionContactList}}
	p.Publish(v2)
	m, err = r.Manifest(ctx, v2.Identity())
	require.NoError(t, err)
	assert.Equal(t, []types.PermissionType{types.PermissionContactList}, m.Required())
	assert.Equal(t, 2, p.HitsWithSuffix("/metadata"))

	cached, err := r.CachedManifest(ctx, v1.Identity())
	require.NoError(t, err)
	assert.Nil(t, cached, "the cache holds one manifest per app")
}

func TestManifestPreviewBypassesCache(t *testing.T) {
	r, p := setup(t, true)
	v := testutil.SimpleVersion("demo", "v1")
	p.Publish(v)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Manifest(ctx, v.Identity())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, p.HitsWithSuffix("/metadata"))
}
