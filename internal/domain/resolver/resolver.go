// Package resolver decides which bundle version a host should run and
// serves its permission manifest, caching manifests per app.
package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/storage"
)

// Platform is the subset of the platform API the resolver needs
type Platform interface {
	ListAll(ctx context.Context) ([]types.Info, error)
	Info(ctx context.Context, appID string) ([]types.Info, error)
	Metadata(ctx context.Context, identity types.Identity) (*types.Manifest, error)
}

// Options configures a Resolver
type Options struct {
	// Preview bypasses the manifest cache on every read
	Preview bool
	Logger  *zap.Logger
}

// Resolver maps app ids to the authoritative latest version
type Resolver struct {
	platform Platform
	store    *storage.Store
	preview  bool
	logger   *zap.Logger
}

// New creates a Resolver
func New(platform Platform, store *storage.Store, opts Options) *Resolver {
	return &Resolver{
		platform: platform,
		store:    store,
		preview:  opts.Preview,
		logger:   logging.OrNop(opts.Logger).Named("resolver"),
	}
}

// Resolve returns the backend's current listing for appID. A requested
// versionID that differs from the current one is not honored here; the
// current version is returned so downloads target the latest.
func (r *Resolver) Resolve(ctx context.Context, appID, versionID string) (types.Info, error) {
	if err := types.ValidateAppID(appID); err != nil {
		return types.Info{}, err
	}

	infos, err := r.platform.Info(ctx, appID)
	if err != nil {
		return types.Info{}, err
	}
	if len(infos) == 0 {
		return types.Info{}, types.NewError(types.KindNoPublishedVersion, fmt.Sprintf("%s has no published version", appID))
	}

	current, ok := pick(infos, appID)
	if !ok {
		return types.Info{}, types.NewError(types.KindNotFound, fmt.Sprintf("%s is not listed", appID))
	}
	if current.Version.VersionID == "" {
		return types.Info{}, types.NewError(types.KindNoPublishedVersion, fmt.Sprintf("%s has no published version", appID))
	}
	if err := current.Identity().Validate(); err != nil {
		return types.Info{}, types.Wrap(types.KindInvalidResponseData, err, "listing")
	}

	if versionID != "" && versionID != current.Version.VersionID {
		r.logger.Info("requested version is not current",
			logging.AppID(appID),
			zap.String("requested", versionID),
			logging.VersionID(current.Version.VersionID))
	}
	return current, nil
}

func pick(infos []types.Info, appID string) (types.Info, bool) {
	for _, info := range infos {
		if info.ID == appID {
			return info, true
		}
	}
	return types.Info{}, false
}

// List returns the listing of one app, or of every app when appID is empty
func (r *Resolver) List(ctx context.Context, appID string) ([]types.Info, error) {
	if appID == "" {
		return r.platform.ListAll(ctx)
	}
	if err := types.ValidateAppID(appID); err != nil {
		return nil, err
	}
	return r.platform.Info(ctx, appID)
}

// Manifest returns the permission manifest of a version. The cached entry
// for the app is used while its versionId matches, except in preview mode.
func (r *Resolver) Manifest(ctx context.Context, identity types.Identity) (*types.Manifest, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if !r.preview {
		cached, err := r.CachedManifest(ctx, identity)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	manifest, err := r.platform.Metadata(ctx, identity)
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveManifest(ctx, identity.AppID, manifest); err != nil {
		return nil, fmt.Errorf("cache manifest: %w", err)
	}
	r.logger.Debug("manifest refreshed", logging.Identity(identity))
	return manifest, nil
}

// CachedManifest returns the stored manifest when it belongs to identity
func (r *Resolver) CachedManifest(ctx context.Context, identity types.Identity) (*types.Manifest, error) {
	cached, err := r.store.Manifest(ctx, identity.AppID)
	if err != nil || cached == nil {
		return nil, err
	}
	if cached.VersionID != identity.VersionID {
		return nil, nil
	}
	return cached, nil
}
