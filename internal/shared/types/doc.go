// Package types provides shared data structures for the mini-app core.
//
// This package defines the types that flow between the resolver, the
// download pipeline, the permission engine and the bridge dispatcher.
//
// Bundle Types:
//   - Identity: (appId, versionId) pair addressing one bundle directory
//   - Info: listing metadata returned by the platform
//   - AssetManifest: flat file list of one bundle version
//   - CachedVersionRecord: per-identity download/hash record
//
// Permission Types:
//   - Manifest: declared permissions, access token scopes, custom metadata
//   - PermissionType, GrantStatus, Grant: consent model
//
// Bridge Types:
//   - BridgeRequest, BridgeResponse: correlated request/response envelopes
//
// Errors:
//   - Error: typed error carrying an ErrorKind from the shared taxonomy
//
// Example Usage:
//
//	id := types.Identity{AppID: "app-1", VersionID: "ver-7"}
//	if err := id.Validate(); err != nil {
//	    return err
//	}
package types
