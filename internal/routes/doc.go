// Package routes discovers protected routes from a content tree.
//
// A content tree holds one top-level directory per route. A route directory
// carries an auth file and any number of markdown pages:
//
//	routes/
//	  docs/
//	    auth.yaml
//	    index.md
//	    guides/setup.md
//	  public/
//	    index.md
//
// The auth file may be JSON (auth.json, auth.jsonc; comments and trailing
// commas allowed), YAML (auth.yaml, auth.yml) or TOML (auth.toml):
//
//	name: "An example organisation"   # optional display name
//	passphrase: "let me in"           # required
//	expires: "2030-10-01"             # optional
//
// Source implements auth.RouteSource and also serves pages to the content
// server. Watcher reports changes to the tree so callers can reload.
package routes
