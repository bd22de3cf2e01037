// Package cli provides the commands of the miniapp binary.
//
// Every command except serve runs one operation against the local cache
// and grant store, then exits. Output goes to the app writer as JSON or
// YAML; logs go to stderr.
package cli
