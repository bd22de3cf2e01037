// Package config provides configuration for the mini-app host core.
//
// Configuration is layered: Default(), then an optional YAML or TOML file,
// then environment variables. Unset variables leave earlier layers intact.
//
// Configuration Sections:
//   - Server: HTTP/websocket serving surface
//   - Platform: bundle backend URL, host id, subscription key, preview mode
//   - Cache: bundle directory, content hash algorithm, ignore globs
//   - Download: worker count, retry policy, signature mode
//   - Store: grant store backend and cipher
//   - Host: local capability values served over the bridge
//   - Logging: level and format
//
// Environment Variables:
//   - MINIAPP_PLATFORM_URL, MINIAPP_HOST_ID, MINIAPP_SUBSCRIPTION_KEY, MINIAPP_PREVIEW
//   - MINIAPP_CACHE_DIR, MINIAPP_HASH, MINIAPP_HASH_IGNORE, MINIAPP_ROOT_ENTRY
//   - MINIAPP_DOWNLOAD_CONCURRENCY, MINIAPP_RETRY_BASE, MINIAPP_RETRY_ATTEMPTS, MINIAPP_SIGNATURE
//   - MINIAPP_STORE, MINIAPP_REDIS_URL, MINIAPP_STORE_CIPHER, MINIAPP_STORE_SECRET
//   - LOG_LEVEL, LOG_DEV
package config
