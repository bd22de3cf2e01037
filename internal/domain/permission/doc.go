// Package permission reconciles a bundle's declared permissions against
// the grants recorded for its app.
//
// Verify succeeds only when every required permission is allowed, and then
// prunes grants the manifest no longer declares. A failed Verify returns
// MetaDataFailure listing what still needs consent; it is never retried
// here. Permissions that are unknown to the taxonomy or not declared by the
// manifest always resolve to unavailable.
package permission
