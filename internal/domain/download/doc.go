// Package download implements the bundle download and integrity pipeline.
//
// EnsureReady resolves one bundle identity to a verified directory:
//
//  1. a downloaded record whose directory still hashes to the stored value
//     is returned without any network call
//  2. otherwise the asset manifest is fetched (and its signature checked
//     per the configured mode) and every listed file is fetched into a
//     private staging directory, at most Concurrency transfers at a time
//  3. a single archive asset is extracted in place and must contain the
//     root entry
//  4. the staging directory is hashed, renamed into place and recorded;
//     other versions of the same app are purged
//
// Concurrent callers for the same identity share one in-flight download.
// The download is cancelled once every waiting caller has gone away, and
// a failed or cancelled download never leaves a directory marked ready.
package download
