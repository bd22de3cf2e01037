// Package loader drives a bundle from listing to a ready, consented
// directory and falls back to the last known good copy when the
// platform cannot be reached.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/domain/cache"
	"github.com/GriffinCanCode/miniapp/internal/domain/download"
	"github.com/GriffinCanCode/miniapp/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp/internal/domain/resolver"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp/internal/shared/clock"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/storage"
)

// Load outcomes recorded in metrics
const (
	OutcomeReady           = "ready"
	OutcomeFallback        = "fallback"
	OutcomeConsentRequired = "consent_required"
	OutcomeFailed          = "failed"
)

// DefaultStagingGrace is how old a staging entry must be before Collect
// removes it. Younger entries may belong to a transfer still running.
const DefaultStagingGrace = time.Hour

// Result is a loaded bundle. Manifest is the permission manifest the
// bundle was reconciled against.
type Result struct {
	Info     types.Info      `json:"info"`
	Bundle   types.Bundle    `json:"bundle"`
	Manifest *types.Manifest `json:"manifest"`
	// Fallback is set when the platform was unreachable and a previously
	// downloaded version is served instead
	Fallback bool `json:"fallback"`
}

// Options configures a Loader
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Clock   clock.Clock
	// StagingGrace overrides DefaultStagingGrace
	StagingGrace time.Duration
}

// Loader orchestrates resolver, pipeline and permission engine
type Loader struct {
	resolver *resolver.Resolver
	pipeline *download.Pipeline
	engine   *permission.Engine
	store    *storage.Store
	verifier *cache.Verifier
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	clock    clock.Clock
	grace    time.Duration
}

// New creates a Loader
func New(r *resolver.Resolver, p *download.Pipeline, e *permission.Engine, store *storage.Store, v *cache.Verifier, opts Options) *Loader {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.StagingGrace <= 0 {
		opts.StagingGrace = DefaultStagingGrace
	}
	return &Loader{
		resolver: r,
		pipeline: p,
		engine:   e,
		store:    store,
		verifier: v,
		logger:   logging.OrNop(opts.Logger).Named("loader"),
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		grace:    opts.StagingGrace,
	}
}

// Load makes the current version of appID ready. On MetaDataFailure the
// result is still returned so the caller can ask for consent and retry.
func (l *Loader) Load(ctx context.Context, appID, versionID string) (*Result, error) {
	res, err := l.load(ctx, appID, versionID)
	if err != nil && types.IsOffline(err) {
		l.logger.Warn("platform unreachable, trying last known good version", logging.AppID(appID), zap.Error(err))
		fallback, ferr := l.fallback(ctx, appID)
		if ferr != nil {
			l.logger.Warn("no usable fallback version", logging.AppID(appID), zap.Error(ferr))
			l.metrics.RecordLoad(OutcomeFailed)
			return nil, err
		}
		res, err = fallback, l.reconcile(ctx, fallback)
		if err == nil {
			l.metrics.RecordLoad(OutcomeFallback)
			return res, nil
		}
	}

	switch {
	case err == nil:
		l.metrics.RecordLoad(OutcomeReady)
	case errors.Is(err, types.ErrMetaDataFailure):
		l.metrics.RecordLoad(OutcomeConsentRequired)
		return res, err
	default:
		l.metrics.RecordLoad(OutcomeFailed)
		return nil, err
	}
	return res, nil
}

func (l *Loader) load(ctx context.Context, appID, versionID string) (*Result, error) {
	info, err := l.resolver.Resolve(ctx, appID, versionID)
	if err != nil {
		return nil, err
	}
	bundle, err := l.pipeline.EnsureReady(ctx, info.Identity())
	if err != nil {
		return nil, err
	}
	manifest, err := l.resolver.Manifest(ctx, info.Identity())
	if err != nil {
		return nil, err
	}
	res := &Result{Info: info, Bundle: bundle, Manifest: manifest}
	return res, l.reconcile(ctx, res)
}

func (l *Loader) reconcile(ctx context.Context, res *Result) error {
	return l.engine.Verify(ctx, res.Bundle.Identity, res.Manifest)
}

// fallback picks the newest downloaded version that still hashes to its
// record and has its manifest cached
func (l *Loader) fallback(ctx context.Context, appID string) (*Result, error) {
	if err := types.ValidateAppID(appID); err != nil {
		return nil, err
	}
	unlock := l.verifier.Lock(appID)
	defer unlock()

	records, err := l.store.Records(ctx, appID)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if !rec.Downloaded {
			continue
		}
		identity := rec.Identity()
		ok, err := l.verifier.Verify(ctx, rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			l.logger.Warn("fallback candidate failed verification", logging.Identity(identity))
			continue
		}
		manifest, err := l.resolver.CachedManifest(ctx, identity)
		if err != nil {
			return nil, err
		}
		if manifest == nil {
			l.logger.Debug("fallback candidate has no cached manifest", logging.Identity(identity))
			continue
		}
		l.logger.Info("serving last known good version", logging.Identity(identity))
		return &Result{
			Info: types.Info{ID: appID, Version: types.Version{VersionID: rec.VersionID}},
			Bundle: types.Bundle{
				Identity:    identity,
				Dir:         l.verifier.Layout().VersionDir(identity),
				ContentHash: rec.ContentHash,
				FromCache:   true,
			},
			Manifest: manifest,
			Fallback: true,
		}, nil
	}
	return nil, types.NewError(types.KindNotFound, fmt.Sprintf("%s has no usable downloaded version", appID))
}
