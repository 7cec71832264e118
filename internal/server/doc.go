// Package server exposes protected routes over HTTP.
//
// # Endpoints
//
//   - GET {base}health: liveness probe
//   - {base}api/{route}: token API. Send Basic credentials or a form POST to
//     receive a token; send a Bearer token or the cookie to check it.
//     Unauthenticated callers get a WWW-Authenticate Basic challenge.
//   - {base}{route}/{page...}: markdown pages rendered to HTML. The routes
//     "public" and "shared" need no credentials.
//
// Failures answer 400 (malformed credentials), 401 (missing or wrong
// credentials) or 403 (expired). Every decision on a protected route is
// logged and, when an audit store is configured, recorded.
package server
