package cache

import (
	"errors"
	"io/fs"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// Purge removes one version directory
func (v *Verifier) Purge(identity types.Identity) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	if err := os.RemoveAll(v.layout.VersionDir(identity)); err != nil {
		return err
	}
	v.logger.Debug("purged bundle version", logging.Identity(identity))
	return nil
}

// PurgeOthers removes every version directory of the app except keep and
// returns the removed version ids
func (v *Verifier) PurgeOthers(keep types.Identity) ([]string, error) {
	versions, err := v.VersionIDs(keep.AppID)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, versionID := range versions {
		if versionID == keep.VersionID {
			continue
		}
		if err := v.Purge(types.Identity{AppID: keep.AppID, VersionID: versionID}); err != nil {
			return removed, err
		}
		removed = append(removed, versionID)
	}
	if len(removed) > 0 {
		v.logger.Info("removed stale bundle versions",
			logging.AppID(keep.AppID),
			zap.Strings("versions", removed))
	}
	return removed, nil
}

// PurgeApp removes the whole app tree
func (v *Verifier) PurgeApp(appID string) error {
	if err := types.ValidateAppID(appID); err != nil {
		return err
	}
	return os.RemoveAll(v.layout.AppDir(appID))
}

// VersionIDs lists the version directories present for an app
func (v *Verifier) VersionIDs(appID string) ([]string, error) {
	if err := types.ValidateAppID(appID); err != nil {
		return nil, err
	}
	return subdirs(v.layout.AppDir(appID))
}

// AppIDs lists the app directories present on disk
func (v *Verifier) AppIDs() ([]string, error) {
	return subdirs(v.layout.BundlesDir())
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
