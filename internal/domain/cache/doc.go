// Package cache verifies and maintains the on-disk bundle tree.
//
// Layout: {root}/bundles/{appId}/{versionId}/... holds one extracted bundle
// version per directory. The content hash of a version is computed over
// every regular file, in sorted slash-separated relative path order, with
// each entry framed as path, NUL, hex file digest, newline. Ignore globs
// (doublestar syntax) are applied before sorting.
//
// Callers that read and rewrite the same app tree hold Lock(appID) for the
// duration; the download pipeline and garbage collection both do.
package cache
