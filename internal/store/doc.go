// Package store provides the authorization audit log, persisted in SQLite.
//
// # Architecture
//
// AuditStore is the interface the HTTP server records decisions through.
// SQLiteStore implements it on modernc.org/sqlite (pure Go, no cgo) with
// WAL journaling so request handlers can append concurrently.
//
// # Data Model
//
//   - AuthEvent: one authorization decision on a protected route: the route,
//     the credential scheme, the sanitized user label, the outcome and, for
//     failures, the error kind and message.
//
// Public routes are never audited. Passphrases and tokens are never stored.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/passgate/audit.db")
//	err = s.AppendAuthEvent(ctx, &store.AuthEvent{Route: "docs", Scheme: "basic", Outcome: store.OutcomeVerified})
//	events, err := s.ListAuthEvents(ctx, store.AuthEventFilter{Limit: 50})
package store
