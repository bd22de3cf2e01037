package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Identity addresses a unique, directory-addressable bundle artifact
type Identity struct {
	AppID     string `json:"appId" msgpack:"app_id"`
	VersionID string `json:"versionId" msgpack:"version_id"`
}

// String returns "appId@versionId"
func (i Identity) String() string {
	return i.AppID + "@" + i.VersionID
}

// Validate checks both halves of the identity. Ids become directory names,
// so only alphanumerics, dots, hyphens and underscores are accepted.
func (i Identity) Validate() error {
	if err := ValidateAppID(i.AppID); err != nil {
		return err
	}
	if !safeIDPattern.MatchString(i.VersionID) || strings.Trim(i.VersionID, ".") == "" {
		return NewError(KindInvalidVersionID, fmt.Sprintf("version id %q is empty or contains invalid characters", i.VersionID))
	}
	return nil
}

// ValidateAppID checks an app id on its own
func ValidateAppID(appID string) error {
	if !safeIDPattern.MatchString(appID) || strings.Trim(appID, ".") == "" {
		return NewError(KindInvalidAppID, fmt.Sprintf("app id %q is empty or contains invalid characters", appID))
	}
	return nil
}

var safeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// Version is the version part of a listing entry
type Version struct {
	VersionTag string `json:"versionTag"`
	VersionID  string `json:"versionId"`
}

// Info represents listing metadata for one published bundle
type Info struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	Icon        string  `json:"icon"`
	Version     Version `json:"version"`
}

// Identity returns the bundle identity this listing points at
func (i Info) Identity() Identity {
	return Identity{AppID: i.ID, VersionID: i.Version.VersionID}
}

// AssetManifest is the flat file list of one bundle version
type AssetManifest struct {
	Files       []string `json:"manifest"`
	PublicKeyID string   `json:"publicKeyId,omitempty"`
	BaseURL     string   `json:"baseUrl,omitempty"`

	// Raw holds the exact response bytes the signature covers
	Raw       []byte `json:"-"`
	Signature string `json:"-"`
}

// PublicKey is a platform signing key
type PublicKey struct {
	ID     string `json:"id"`
	PemKey string `json:"pemKey"`
}

// CachedVersionRecord tracks one downloaded bundle version on disk
type CachedVersionRecord struct {
	AppID                  string    `json:"appId" msgpack:"app_id"`
	VersionID              string    `json:"versionId" msgpack:"version_id"`
	Downloaded             bool      `json:"downloaded" msgpack:"downloaded"`
	ContentHash            string    `json:"contentHash" msgpack:"content_hash"`
	HashAlgorithm          string    `json:"hashAlgorithm" msgpack:"hash_algorithm"`
	LastKnownGoodVersionID string    `json:"lastKnownGoodVersionId,omitempty" msgpack:"last_known_good_version_id"`
	DownloadedAt           time.Time `json:"downloadedAt" msgpack:"downloaded_at"`
}

// Identity returns the identity the record describes
func (r CachedVersionRecord) Identity() Identity {
	return Identity{AppID: r.AppID, VersionID: r.VersionID}
}

// Bundle is a verified, ready-to-run bundle directory
type Bundle struct {
	Identity    Identity `json:"identity"`
	Dir         string   `json:"dir"`
	ContentHash string   `json:"contentHash"`
	FromCache   bool     `json:"fromCache"`
}
