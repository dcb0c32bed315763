// Package server implements the HTTP and WebSocket front end of the group chat.
//
// The implementation is organized into specialized files for configuration,
// the hub lifecycle, per-connection pumps, origin and rate-limit policy,
// routing, and HTTP handlers. Membership state and message dispatch live in
// the membership and router packages; this package only moves frames between
// sockets and the router.
package server
