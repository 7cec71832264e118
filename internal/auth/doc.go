// Package auth gates content routes behind shared passphrases.
//
// # Model
//
// Every protected route has exactly one passphrase. There are no user
// accounts: a free-text user label may accompany a request for display and
// audit purposes only. The routes "public" and "shared" are never protected.
//
// # Passphrase Registry
//
// The registry maps each passphrase to its route and expiry. It is built
// from Records supplied by a RouteSource:
//
//	reg, diags := BuildRegistry(records, contentRoutes, time.Now())
//
// Records for reserved routes, records without a passphrase and records
// reusing another route's passphrase are skipped and reported as
// Diagnostics. Missing or unparsable expiries default to now + 364 days.
// A registry is never modified after it is built; the Authorizer swaps in a
// new one on rebuild.
//
// # Credentials
//
// Extract reads a credential from a request, trying in order:
//
//   - a form body with pass (and optional user) fields
//   - an Authorization cookie holding a previously issued token
//   - an Authorization header, either "Basic <base64 user:pass>" or
//     "Bearer <token>"
//
// # Tokens
//
// Tokens are HS256 JWTs carrying the route as "sub" and the expiry as "exp".
// The signing key is derived from the configured secret with HKDF-SHA256:
//
//	codec, err := NewCodec(secret)
//	token, expires, err := codec.Issue("docs", expiresAt)
//	claim, err := codec.Verify(token, "docs")
//
// A token is only valid for the route it was issued for.
//
// # Authorization
//
// The Authorizer ties it together. A passphrase is exchanged for a token and
// a Set-Cookie directive scoped to the route; a token is verified without
// issuing a new one:
//
//	authz := NewAuthorizer(codec, Config{BasePath: "/"})
//	diags, err := authz.Load(ctx, source)
//	switch res := authz.GetAuth(r, Target{Route: "docs"}, "").(type) {
//	case *Verified:
//	    w.Header().Add("Set-Cookie", res.SetCookie)
//	case *Failure:
//	    http.Error(w, res.Message, res.HTTPStatus())
//	}
package auth
