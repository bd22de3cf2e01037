package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp/internal/shared/keylock"
	"github.com/GriffinCanCode/miniapp/internal/shared/paths"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/shared/utils"
)

// hashWorkers bounds concurrent file digests within one Hash call
const hashWorkers = 8

// Lookup results recorded in metrics
const (
	LookupHit      = "hit"
	LookupMiss     = "miss"
	LookupMismatch = "mismatch"
)

// Options configures a Verifier
type Options struct {
	Layout  paths.Layout
	Hasher  *utils.Hasher
	Ignore  []string
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Verifier hashes, compares and purges bundle directories
type Verifier struct {
	layout  paths.Layout
	hasher  *utils.Hasher
	ignore  []string
	locks   *keylock.Locker
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a Verifier
func New(opts Options) (*Verifier, error) {
	for _, pattern := range opts.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}
	if opts.Hasher == nil {
		opts.Hasher = utils.DefaultHasher()
	}
	return &Verifier{
		layout:  opts.Layout,
		hasher:  opts.Hasher,
		ignore:  append([]string(nil), opts.Ignore...),
		locks:   keylock.New(),
		logger:  logging.OrNop(opts.Logger).Named("cache"),
		metrics: opts.Metrics,
	}, nil
}

// Layout returns the directory layout the verifier works on
func (v *Verifier) Layout() paths.Layout {
	return v.layout
}

// Algorithm returns the algorithm new hashes are computed with
func (v *Verifier) Algorithm() utils.HashAlgorithm {
	return v.hasher.Algorithm()
}

// Lock serializes work on one app's directory tree
func (v *Verifier) Lock(appID string) func() {
	return v.locks.Lock(appID)
}

// Files returns the sorted relative paths the content hash covers.
// Anything other than regular files and directories is Corrupted.
func (v *Verifier) Files(ctx context.Context, dir string) ([]string, error) {
	var (
		mu    sync.Mutex
		files []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !d.Type().IsRegular() {
			return types.NewError(types.KindCorrupted, fmt.Sprintf("%s is not a regular file", rel))
		}
		if v.ignored(rel) {
			return nil
		}
		mu.Lock()
		files = append(files, rel)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (v *Verifier) ignored(rel string) bool {
	for _, pattern := range v.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Hash computes the content hash of dir with the verifier's algorithm
func (v *Verifier) Hash(ctx context.Context, dir string) (string, error) {
	return v.hashWith(ctx, dir, v.hasher)
}

func (v *Verifier) hashWith(ctx context.Context, dir string, hasher *utils.Hasher) (string, error) {
	files, err := v.Files(ctx, dir)
	if err != nil {
		return "", err
	}

	digests := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hashWorkers)
	for i, rel := range files {
		i, rel := i, rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
			if err != nil {
				return err
			}
			defer f.Close()
			digest, err := hasher.HashReader(f)
			if err != nil {
				return fmt.Errorf("hash %s: %w", rel, err)
			}
			digests[i] = digest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	h := hasher.New()
	for i, rel := range files {
		_, _ = h.Write([]byte(rel))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(digests[i]))
		_, _ = h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Verify reports whether the record's directory exists and still matches
// its stored hash. The caller should hold Lock(rec.AppID).
func (v *Verifier) Verify(ctx context.Context, rec types.CachedVersionRecord) (bool, error) {
	identity := rec.Identity()
	if !rec.Downloaded || rec.ContentHash == "" {
		v.metrics.RecordCacheLookup(LookupMiss)
		return false, nil
	}
	if err := identity.Validate(); err != nil {
		return false, err
	}
	dir := v.layout.VersionDir(identity)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			v.metrics.RecordCacheLookup(LookupMiss)
			return false, nil
		}
		return false, err
	}

	hasher := v.hasher
	if rec.HashAlgorithm != "" && rec.HashAlgorithm != string(v.hasher.Algorithm()) {
		alg, err := utils.ParseHashAlgorithm(rec.HashAlgorithm)
		if err != nil {
			v.metrics.RecordCacheLookup(LookupMismatch)
			return false, nil
		}
		hasher = utils.NewHasher(alg)
	}

	sum, err := v.hashWith(ctx, dir, hasher)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		v.logger.Warn("bundle directory unreadable", logging.Identity(identity), zap.Error(err))
		v.metrics.RecordCacheLookup(LookupMismatch)
		return false, nil
	}
	if sum != rec.ContentHash {
		v.logger.Warn("content hash mismatch",
			logging.Identity(identity),
			zap.String("expected", rec.ContentHash),
			zap.String("actual", sum))
		v.metrics.RecordCacheLookup(LookupMismatch)
		return false, nil
	}
	v.metrics.RecordCacheLookup(LookupHit)
	return true, nil
}
