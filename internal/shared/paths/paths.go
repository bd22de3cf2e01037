package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// Subdirectories of the cache root
const (
	Bundles   = "bundles"
	Staging   = "staging"
	Store     = "store"
	Downloads = "downloads"
)

// Layout resolves directories beneath a cache root
type Layout struct {
	Root string
}

// New returns a layout rooted at root
func New(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

// BundlesDir returns <root>/bundles
func (l Layout) BundlesDir() string {
	return filepath.Join(l.Root, Bundles)
}

// AppDir returns the directory holding every version of appID
func (l Layout) AppDir(appID string) string {
	return filepath.Join(l.Root, Bundles, appID)
}

// VersionDir returns the ready directory of one bundle version
func (l Layout) VersionDir(identity types.Identity) string {
	return filepath.Join(l.Root, Bundles, identity.AppID, identity.VersionID)
}

// StagingDir returns <root>/staging
func (l Layout) StagingDir() string {
	return filepath.Join(l.Root, Staging)
}

// StoreDir returns <root>/store
func (l Layout) StoreDir() string {
	return filepath.Join(l.Root, Store)
}

// DownloadsDir returns the per-app directory for bridge downloads
func (l Layout) DownloadsDir(appID string) string {
	return filepath.Join(l.Root, Downloads, appID)
}

// Ensure creates the standard directories
func (l Layout) Ensure() error {
	for _, dir := range []string{l.BundlesDir(), l.StagingDir(), l.StoreDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Within joins rel onto base and rejects results escaping base
func Within(base, rel string) (string, error) {
	joined := filepath.Join(base, filepath.FromSlash(rel))
	back, err := filepath.Rel(base, joined)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", rel, base)
	}
	return joined, nil
}
