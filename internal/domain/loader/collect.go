package loader

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/shared/id"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// Report summarises one garbage collection run
type Report struct {
	// Apps whose grants, manifest and records were removed
	Apps []string `json:"apps"`
	// Records dropped because their directory is missing or fails its hash
	Records []types.Identity `json:"records"`
	// Directories removed because no downloaded record covers them
	Dirs []types.Identity `json:"dirs"`
	// Staging entries left behind by interrupted downloads. Entries younger
	// than the staging grace period are kept.
	Staging int `json:"staging"`
}

// Collect removes store entries of apps with no downloaded bundle on disk,
// stale version records and orphaned version directories
func (l *Loader) Collect(ctx context.Context) (*Report, error) {
	storeApps, err := l.store.AppIDs(ctx)
	if err != nil {
		return nil, err
	}
	diskApps, err := l.verifier.AppIDs()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, appID := range union(storeApps, diskApps) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := types.ValidateAppID(appID); err != nil {
			l.logger.Warn("skipping invalid app id", zap.String("app_id", appID))
			continue
		}
		if err := l.collectApp(ctx, appID, report); err != nil {
			return report, err
		}
	}

	n, err := sweepStaging(l.verifier.Layout().StagingDir(), l.clock.Now().Add(-l.grace))
	if err != nil {
		return report, err
	}
	report.Staging = n

	l.metrics.AddCollected("apps", len(report.Apps))
	l.metrics.AddCollected("records", len(report.Records))
	l.metrics.AddCollected("dirs", len(report.Dirs))
	l.metrics.AddCollected("staging", report.Staging)
	l.logger.Info("garbage collection finished",
		zap.Int("apps", len(report.Apps)),
		zap.Int("records", len(report.Records)),
		zap.Int("dirs", len(report.Dirs)),
		zap.Int("staging", report.Staging))
	return report, nil
}

func (l *Loader) collectApp(ctx context.Context, appID string, report *Report) error {
	unlock := l.verifier.Lock(appID)
	defer unlock()

	records, err := l.store.Records(ctx, appID)
	if err != nil {
		return err
	}
	live := make(map[string]bool)
	for _, rec := range records {
		identity := rec.Identity()
		ok := false
		if rec.Downloaded {
			if ok, err = l.verifier.Verify(ctx, rec); err != nil {
				return err
			}
		}
		if ok {
			live[rec.VersionID] = true
			continue
		}
		if err := l.store.DeleteRecord(ctx, identity); err != nil {
			return err
		}
		report.Records = append(report.Records, identity)
	}

	versions, err := l.verifier.VersionIDs(appID)
	if err != nil {
		return err
	}
	for _, versionID := range versions {
		if live[versionID] {
			continue
		}
		identity := types.Identity{AppID: appID, VersionID: versionID}
		if err := l.verifier.Purge(identity); err != nil {
			return err
		}
		report.Dirs = append(report.Dirs, identity)
	}

	if len(live) > 0 {
		return nil
	}
	if err := l.store.Forget(ctx, appID); err != nil {
		return err
	}
	if err := l.verifier.PurgeApp(appID); err != nil {
		return err
	}
	report.Apps = append(report.Apps, appID)
	l.logger.Info("forgot app without downloaded bundle", logging.AppID(appID))
	return nil
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// sweepStaging removes staging entries created before cutoff. Names that
// are not staging ids were not made by the pipeline and are always removed.
func sweepStaging(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if id.HasPrefix(e.Name(), id.StagingPrefix) {
			created, err := id.Timestamp(e.Name())
			if err == nil && !created.Before(cutoff) {
				continue
			}
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
