// Package paths defines the on-disk layout under the cache root.
//
// # Directory Structure
//
//	<root>/
//	  ├── bundles/          (one subtree per app)
//	  │   └── <appId>/
//	  │       └── <versionId>/   (ready bundle files)
//	  ├── staging/          (in-flight downloads, removed on failure)
//	  ├── store/            (file-backed grant store)
//	  └── downloads/        (files saved through the bridge)
//
// # Usage
//
//	layout := paths.New(cfg.Cache.Dir)
//	dir := layout.VersionDir(identity) // <root>/bundles/app/ver
package paths
