package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/shared/clock"
	"github.com/GriffinCanCode/miniapp/internal/shared/keylock"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// Namespaces
const (
	NamespaceGrants    = "grants"
	NamespaceManifests = "manifests"
	NamespaceVersions  = "versions"
)

// Options configures a Store
type Options struct {
	Logger *zap.Logger
	Clock  clock.Clock
}

// Store is the typed, encrypted view over a Backend
type Store struct {
	backend Backend
	sealer  Sealer
	locks   *keylock.Locker
	clock   clock.Clock
	logger  *zap.Logger
}

// New creates a Store
func New(backend Backend, sealer Sealer, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Store{
		backend: backend,
		sealer:  sealer,
		locks:   keylock.New(),
		clock:   opts.Clock,
		logger:  logging.OrNop(opts.Logger).Named("store"),
	}
}

// Close releases the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

func entryAAD(namespace, key string) []byte {
	return []byte(namespace + "\x00" + key)
}

// load decodes the entry into v. Absent, undecryptable and undecodable
// entries all report false with no error.
func (s *Store) load(ctx context.Context, namespace, key string, v interface{}) (bool, error) {
	sealed, err := s.backend.Get(ctx, namespace, key)
	if errors.Is(err, ErrMissing) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s/%s: %w", namespace, key, err)
	}

	plain, err := s.sealer.Open(namespace, sealed, entryAAD(namespace, key))
	if err != nil {
		s.logger.Warn("discarding undecryptable entry", zap.String("namespace", namespace), zap.String("key", key))
		return false, nil
	}
	if err := msgpack.Unmarshal(plain, v); err != nil {
		s.logger.Warn("discarding undecodable entry", zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *Store) save(ctx context.Context, namespace, key string, v interface{}) error {
	plain, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}
	sealed, err := s.sealer.Seal(namespace, plain, entryAAD(namespace, key))
	if err != nil {
		return fmt.Errorf("seal %s/%s: %w", namespace, key, err)
	}
	if err := s.backend.Put(ctx, namespace, key, sealed); err != nil {
		return fmt.Errorf("write %s/%s: %w", namespace, key, err)
	}
	return nil
}

type grantList struct {
	Grants []types.Grant `msgpack:"grants"`
}

// Grants returns the stored grants of appID
func (s *Store) Grants(ctx context.Context, appID string) ([]types.Grant, error) {
	var list grantList
	if _, err := s.load(ctx, NamespaceGrants, appID, &list); err != nil {
		return nil, err
	}
	return list.Grants, nil
}

// UpdateGrants applies fn to the grants of appID under the app's grant
// lock and persists the result. An empty result deletes the entry.
func (s *Store) UpdateGrants(ctx context.Context, appID string, fn func([]types.Grant) ([]types.Grant, error)) ([]types.Grant, error) {
	unlock := s.locks.Lock(NamespaceGrants + "/" + appID)
	defer unlock()

	current, err := s.Grants(ctx, appID)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if len(next) == 0 {
		return nil, s.backend.Delete(ctx, NamespaceGrants, appID)
	}

	now := s.clock.Now().UTC()
	for i := range next {
		if next[i].UpdatedAt.IsZero() {
			next[i].UpdatedAt = now
		}
	}
	if err := s.save(ctx, NamespaceGrants, appID, grantList{Grants: next}); err != nil {
		return nil, err
	}
	return next, nil
}

// DeleteGrants removes every grant of appID
func (s *Store) DeleteGrants(ctx context.Context, appID string) error {
	unlock := s.locks.Lock(NamespaceGrants + "/" + appID)
	defer unlock()
	return s.backend.Delete(ctx, NamespaceGrants, appID)
}

type cachedManifest struct {
	Manifest types.Manifest `msgpack:"manifest"`
	CachedAt time.Time      `msgpack:"cached_at"`
}

// Manifest returns the cached manifest of appID, or nil
func (s *Store) Manifest(ctx context.Context, appID string) (*types.Manifest, error) {
	var entry cachedManifest
	ok, err := s.load(ctx, NamespaceManifests, appID, &entry)
	if err != nil || !ok {
		return nil, err
	}
	return &entry.Manifest, nil
}

// SaveManifest caches m for appID, replacing any earlier version's manifest
func (s *Store) SaveManifest(ctx context.Context, appID string, m *types.Manifest) error {
	return s.save(ctx, NamespaceManifests, appID, cachedManifest{Manifest: *m, CachedAt: s.clock.Now().UTC()})
}

// DeleteManifest drops the cached manifest of appID
func (s *Store) DeleteManifest(ctx context.Context, appID string) error {
	return s.backend.Delete(ctx, NamespaceManifests, appID)
}

func recordKey(identity types.Identity) string {
	return identity.AppID + "/" + identity.VersionID
}

// Record returns the cached version record of identity, or nil
func (s *Store) Record(ctx context.Context, identity types.Identity) (*types.CachedVersionRecord, error) {
	var rec types.CachedVersionRecord
	ok, err := s.load(ctx, NamespaceVersions, recordKey(identity), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

// SaveRecord persists rec
func (s *Store) SaveRecord(ctx context.Context, rec types.CachedVersionRecord) error {
	unlock := s.locks.Lock(NamespaceVersions + "/" + rec.AppID)
	defer unlock()
	return s.save(ctx, NamespaceVersions, recordKey(rec.Identity()), rec)
}

// DeleteRecord removes the record of identity
func (s *Store) DeleteRecord(ctx context.Context, identity types.Identity) error {
	unlock := s.locks.Lock(NamespaceVersions + "/" + identity.AppID)
	defer unlock()
	return s.backend.Delete(ctx, NamespaceVersions, recordKey(identity))
}

// Records returns the readable records of appID, or of every app when
// appID is empty, newest download first
func (s *Store) Records(ctx context.Context, appID string) ([]types.CachedVersionRecord, error) {
	keys, err := s.backend.List(ctx, NamespaceVersions)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	var out []types.CachedVersionRecord
	for _, key := range keys {
		if appID != "" && !strings.HasPrefix(key, appID+"/") {
			continue
		}
		var rec types.CachedVersionRecord
		ok, err := s.load(ctx, NamespaceVersions, key, &rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DownloadedAt.After(out[j].DownloadedAt)
	})
	return out, nil
}

// AppIDs returns every appId with any stored entry
func (s *Store) AppIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, ns := range []string{NamespaceGrants, NamespaceManifests, NamespaceVersions} {
		keys, err := s.backend.List(ctx, ns)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", ns, err)
		}
		for _, key := range keys {
			if i := strings.IndexByte(key, '/'); i >= 0 {
				key = key[:i]
			}
			seen[key] = true
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Forget removes every entry of appID, readable or not
func (s *Store) Forget(ctx context.Context, appID string) error {
	if err := s.DeleteGrants(ctx, appID); err != nil {
		return err
	}
	if err := s.DeleteManifest(ctx, appID); err != nil {
		return err
	}

	keys, err := s.backend.List(ctx, NamespaceVersions)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	unlock := s.locks.Lock(NamespaceVersions + "/" + appID)
	defer unlock()
	for _, key := range keys {
		if strings.HasPrefix(key, appID+"/") {
			if err := s.backend.Delete(ctx, NamespaceVersions, key); err != nil {
				return err
			}
		}
	}
	return nil
}
