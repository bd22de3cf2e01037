// Package bridge routes bundle commands to host capabilities.
//
// A Dispatcher serves one running bundle instance. Each inbound message
// {id, action, param} is validated, checked against the app's grants when
// the action is permission-gated, and then delegated to the Host. Requests
// run concurrently and every request is answered exactly once with
// {id, status, payload}; responses for different ids arrive in any order.
//
// Gated actions whose permission is denied, undecided or unavailable are
// answered immediately without calling the Host. Requests that share an id
// are not deduplicated: each one gets its own response.
package bridge
