// Package app assembles the bundle runtime from configuration.
//
// A Runtime owns every long-lived component: the platform client, the
// grant store, the cache verifier, the download pipeline, the permission
// engine and the loader that orchestrates them. Both the HTTP server and
// the command line build on it.
//
// Example Usage:
//
//	rt, err := app.New(cfg, app.Options{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//	res, err := rt.Loader.Load(ctx, "demo", "")
package app
