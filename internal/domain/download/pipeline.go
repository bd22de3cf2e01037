package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/miniapp/internal/domain/cache"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/config"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp/internal/shared/clock"
	"github.com/GriffinCanCode/miniapp/internal/shared/id"
	"github.com/GriffinCanCode/miniapp/internal/shared/paths"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/storage"
)

// DefaultConcurrency bounds simultaneous asset transfers per download
const DefaultConcurrency = config.MaxDownloadConcurrency

// Download outcomes recorded in metrics
const (
	OutcomeCached     = "cached"
	OutcomeDownloaded = "downloaded"
	OutcomeFailed     = "failed"
	OutcomeCancelled  = "cancelled"
)

// Source is the subset of the platform API the pipeline needs
type Source interface {
	AssetManifest(ctx context.Context, identity types.Identity) (*types.AssetManifest, error)
	PublicKey(ctx context.Context, keyID string) (*types.PublicKey, error)
	FetchAsset(ctx context.Context, identity types.Identity, manifest *types.AssetManifest, file string, w io.Writer) (int64, error)
}

// Options configures a Pipeline
type Options struct {
	Concurrency   int
	SignatureMode string
	// RootEntry must exist at the top of an extracted archive
	RootEntry string
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
	Clock     clock.Clock
}

// Pipeline downloads, verifies and installs bundle versions
type Pipeline struct {
	source        Source
	store         *storage.Store
	verifier      *cache.Verifier
	layout        paths.Layout
	concurrency   int
	signatureMode string
	rootEntry     string
	logger        *zap.Logger
	metrics       *monitoring.Metrics
	clock         clock.Clock

	mu      sync.Mutex
	flights map[types.Identity]*flight
}

// flight is one in-progress EnsureReady shared by every caller waiting on
// the same identity
type flight struct {
	done    chan struct{}
	cancel  context.CancelFunc
	waiters int
	bundle  types.Bundle
	err     error
}

// New creates a Pipeline
func New(source Source, store *storage.Store, verifier *cache.Verifier, opts Options) *Pipeline {
	if opts.Concurrency <= 0 || opts.Concurrency > DefaultConcurrency {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.SignatureMode == "" {
		opts.SignatureMode = config.SignatureOptional
	}
	if opts.RootEntry == "" {
		opts.RootEntry = "index.html"
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Pipeline{
		source:        source,
		store:         store,
		verifier:      verifier,
		layout:        verifier.Layout(),
		concurrency:   opts.Concurrency,
		signatureMode: opts.SignatureMode,
		rootEntry:     opts.RootEntry,
		logger:        logging.OrNop(opts.Logger).Named("download"),
		metrics:       opts.Metrics,
		clock:         opts.Clock,
		flights:       make(map[types.Identity]*flight),
	}
}

// EnsureReady returns a verified bundle directory for identity, reusing a
// hash-valid cached copy without touching the network. Cancelling ctx
// abandons the wait; the shared download is cancelled once no caller is
// left waiting on it.
func (p *Pipeline) EnsureReady(ctx context.Context, identity types.Identity) (types.Bundle, error) {
	if err := identity.Validate(); err != nil {
		return types.Bundle{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Bundle{}, err
	}

	p.mu.Lock()
	f, joined := p.flights[identity]
	if !joined {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{done: make(chan struct{}), cancel: cancel}
		p.flights[identity] = f
		go p.run(fctx, identity, f)
	} else {
		p.metrics.IncDownloadJoins()
	}
	f.waiters++
	p.mu.Unlock()

	if joined {
		p.logger.Debug("joined in-flight download", logging.Identity(identity))
	}

	select {
	case <-f.done:
		p.leave(identity, f)
		return f.bundle, f.err
	case <-ctx.Done():
		p.leave(identity, f)
		return types.Bundle{}, ctx.Err()
	}
}

// InFlight reports how many identities are currently being prepared
func (p *Pipeline) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.flights)
}

func (p *Pipeline) leave(identity types.Identity, f *flight) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	select {
	case <-f.done:
	default:
		// nobody is waiting any more: abandon the download and let the
		// next caller start afresh behind the app lock
		f.cancel()
		if p.flights[identity] == f {
			delete(p.flights, identity)
		}
	}
}

func (p *Pipeline) run(ctx context.Context, identity types.Identity, f *flight) {
	defer f.cancel()
	f.bundle, f.err = p.ensure(ctx, identity)

	p.mu.Lock()
	if p.flights[identity] == f {
		delete(p.flights, identity)
	}
	p.mu.Unlock()
	close(f.done)
}

func (p *Pipeline) ensure(ctx context.Context, identity types.Identity) (types.Bundle, error) {
	start := p.clock.Now()
	unlock := p.verifier.Lock(identity.AppID)
	defer unlock()

	bundle, ok, err := p.cached(ctx, identity)
	if err != nil {
		p.metrics.RecordDownload(outcomeOf(err), p.since(start))
		return types.Bundle{}, err
	}
	if ok {
		p.metrics.RecordDownload(OutcomeCached, p.since(start))
		return bundle, nil
	}

	bundle, err = p.download(ctx, identity)
	p.metrics.RecordDownload(outcomeOf(err), p.since(start))
	if err != nil {
		p.logger.Warn("bundle download failed", logging.Identity(identity), zap.Error(err))
		return types.Bundle{}, err
	}
	p.logger.Info("bundle ready",
		logging.Identity(identity),
		zap.String("content_hash", bundle.ContentHash),
		zap.Duration("duration", p.since(start)))
	return bundle, nil
}

// cached returns the on-disk bundle when its record is downloaded and
// the directory still hashes to the recorded value. A stale or tampered
// copy is purged together with its record.
func (p *Pipeline) cached(ctx context.Context, identity types.Identity) (types.Bundle, bool, error) {
	rec, err := p.store.Record(ctx, identity)
	if err != nil {
		return types.Bundle{}, false, err
	}
	if rec != nil && rec.Downloaded {
		ok, err := p.verifier.Verify(ctx, *rec)
		if err != nil {
			return types.Bundle{}, false, err
		}
		if ok {
			return types.Bundle{
				Identity:    identity,
				Dir:         p.layout.VersionDir(identity),
				ContentHash: rec.ContentHash,
				FromCache:   true,
			}, true, nil
		}
		p.logger.Warn("cached bundle failed verification, downloading again", logging.Identity(identity))
	}

	if rec != nil {
		if err := p.store.DeleteRecord(ctx, identity); err != nil {
			return types.Bundle{}, false, err
		}
	}
	if err := p.verifier.Purge(identity); err != nil {
		return types.Bundle{}, false, fmt.Errorf("purge stale bundle: %w", err)
	}
	return types.Bundle{}, false, nil
}

func (p *Pipeline) download(ctx context.Context, identity types.Identity) (types.Bundle, error) {
	manifest, err := p.source.AssetManifest(ctx, identity)
	if err != nil {
		return types.Bundle{}, err
	}
	if err := p.checkSignature(ctx, identity, manifest); err != nil {
		return types.Bundle{}, err
	}

	staging, err := p.stage()
	if err != nil {
		return types.Bundle{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	if err := p.fetchAll(ctx, identity, manifest, staging); err != nil {
		return types.Bundle{}, err
	}
	if err := p.unpack(ctx, manifest, staging); err != nil {
		return types.Bundle{}, err
	}

	sum, err := p.verifier.Hash(ctx, staging)
	if err != nil {
		return types.Bundle{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Bundle{}, err
	}

	target := p.layout.VersionDir(identity)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return types.Bundle{}, err
	}
	if err := os.RemoveAll(target); err != nil {
		return types.Bundle{}, err
	}
	if err := os.Rename(staging, target); err != nil {
		return types.Bundle{}, fmt.Errorf("install bundle: %w", err)
	}
	committed = true

	if err := p.record(ctx, identity, sum); err != nil {
		_ = os.RemoveAll(target)
		return types.Bundle{}, err
	}
	p.cleanup(ctx, identity)

	return types.Bundle{Identity: identity, Dir: target, ContentHash: sum}, nil
}

func (p *Pipeline) stage() (string, error) {
	if err := os.MkdirAll(p.layout.StagingDir(), 0o755); err != nil {
		return "", err
	}
	dir := filepath.Join(p.layout.StagingDir(), id.NewStagingID().String())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	return dir, nil
}

// fetchAll transfers every listed file, at most p.concurrency at a time.
// The first failure cancels the rest.
func (p *Pipeline) fetchAll(ctx context.Context, identity types.Identity, manifest *types.AssetManifest, staging string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, file := range manifest.Files {
		file := file
		g.Go(func() error {
			return p.fetchOne(gctx, identity, manifest, staging, file)
		})
	}
	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Pipeline) fetchOne(ctx context.Context, identity types.Identity, manifest *types.AssetManifest, staging, file string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := paths.Within(staging, file)
	if err != nil {
		return types.Wrap(types.KindInvalidResponseData, err, "asset path")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return types.Wrap(types.KindDownloadingFailed, err, "create "+file)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return types.Wrap(types.KindDownloadingFailed, err, "create "+file)
	}

	_, err = p.source.FetchAsset(ctx, identity, manifest, file, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return types.Wrap(types.KindDownloadingFailed, err, "fetch "+file)
	}
	return nil
}

// unpack extracts a single-archive bundle in place. Bundles published as
// plain files are left untouched.
func (p *Pipeline) unpack(ctx context.Context, manifest *types.AssetManifest, staging string) error {
	if len(manifest.Files) != 1 {
		return nil
	}
	file := manifest.Files[0]
	downloaded := filepath.Join(staging, filepath.FromSlash(file))
	format, err := detectArchive(downloaded)
	if err != nil {
		return corrupted(err, "inspect "+file)
	}
	if format == formatNone {
		return nil
	}

	archivePath := staging + ".archive"
	if err := os.Rename(downloaded, archivePath); err != nil {
		return err
	}
	defer os.Remove(archivePath)

	if err := extractArchive(ctx, archivePath, staging, format); err != nil {
		return err
	}
	info, err := os.Stat(filepath.Join(staging, filepath.FromSlash(p.rootEntry)))
	if err != nil || !info.Mode().IsRegular() {
		return types.NewError(types.KindCorrupted, fmt.Sprintf("archive %s has no %s", file, p.rootEntry))
	}
	return nil
}

// record persists the downloaded version, remembering the version it
// replaces as last known good
func (p *Pipeline) record(ctx context.Context, identity types.Identity, sum string) error {
	rec := types.CachedVersionRecord{
		AppID:         identity.AppID,
		VersionID:     identity.VersionID,
		Downloaded:    true,
		ContentHash:   sum,
		HashAlgorithm: string(p.verifier.Algorithm()),
		DownloadedAt:  p.clock.Now().UTC(),
	}
	previous, err := p.store.Records(ctx, identity.AppID)
	if err != nil {
		return err
	}
	for _, prev := range previous {
		if prev.Downloaded && prev.VersionID != identity.VersionID {
			rec.LastKnownGoodVersionID = prev.VersionID
			break
		}
	}
	if err := p.store.SaveRecord(ctx, rec); err != nil {
		return fmt.Errorf("save version record: %w", err)
	}
	return nil
}

// cleanup removes other versions of the app and their records. Failures
// are logged; the new version is already installed.
func (p *Pipeline) cleanup(ctx context.Context, keep types.Identity) {
	if _, err := p.verifier.PurgeOthers(keep); err != nil {
		p.logger.Warn("failed to purge old versions", logging.Identity(keep), zap.Error(err))
	}
	records, err := p.store.Records(ctx, keep.AppID)
	if err != nil {
		p.logger.Warn("failed to list version records", logging.Identity(keep), zap.Error(err))
		return
	}
	for _, rec := range records {
		if rec.VersionID == keep.VersionID {
			continue
		}
		if err := p.store.DeleteRecord(ctx, rec.Identity()); err != nil {
			p.logger.Warn("failed to delete stale record", logging.Identity(rec.Identity()), zap.Error(err))
		}
	}
}

func (p *Pipeline) since(start time.Time) time.Duration {
	return p.clock.Now().Sub(start)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeDownloaded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
