// Package ws carries the bridge protocol over websockets.
//
// A connection to /v1/apps/:appId/bridge loads the bundle first; the
// upgrade is refused with the REST error body when loading fails or
// consent is still pending. Every text frame is one bridge request and
// every response is written as one text frame, in completion order.
//
// LocalHost is the capability set served to connected bundles. It has no
// user interface: prompts are answered from configuration.
package ws
