// Package platform talks to the mini-app distribution backend.
//
// The client resolves listings and bundle info, the per-version permission
// metadata, the flat asset manifest (with its detached signature) and the
// signing keys, and builds asset URLs for the download pipeline.
//
// Endpoints (relative to the configured base URL):
//   - GET /host/{hostId}/miniapps
//   - GET /host/{hostId}/miniapp/{appId}/info
//   - GET /host/{hostId}/miniapp/{appId}/miniappversion/{versionId}/metadata
//   - GET /host/{hostId}/miniapp/{appId}/version/{versionId}/manifest
//   - GET /host/{hostId}/keys/{keyId}
//
// Preview mode serves unpublished versions under /host/{hostId}/preview/.
// Every payload is schema-checked before decoding; anything that does not
// match surfaces as InvalidResponseData.
//
// Example Usage:
//
//	client, err := platform.New(http, platform.Options{BaseURL: url, HostID: "host-1"}, logger)
//	infos, err := client.Info(ctx, "demo-app")
//	manifest, err := client.Metadata(ctx, infos[0].Identity())
package platform
