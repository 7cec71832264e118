// ABOUTME: Passphrase registry mapping each shared passphrase to one route and expiry
// ABOUTME: Built wholesale from route auth records, reporting configuration diagnostics

package auth

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultExpiry is applied to records without a usable expiry.
const DefaultExpiry = 364 * 24 * time.Hour

// reservedRoutes are always public and must never carry auth records.
var reservedRoutes = map[string]bool{
	"public": true,
	"shared": true,
}

// IsReservedRoute reports whether route is served without authentication.
func IsReservedRoute(route string) bool {
	return reservedRoutes[route]
}

// expiryLayouts are tried in order when parsing a record's expiry.
var expiryLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"2 January 2006 15:04:05 -07:00",
	"2 January 2006 15:04:05 -0700",
	"2 January 2006 15:04 -0700",
	"2 January 2006 15:04",
	"2 January 2006",
	"January 2, 2006",
}

// Record is the auth configuration of one protected route, as supplied by a
// RouteSource.
type Record struct {
	Route       string
	Passphrase  string
	DisplayName string
	// Expires is the raw expiry text; empty means no expiry was set.
	Expires string
	// Source identifies where the record came from, for diagnostics.
	Source string
}

// Entry is what a passphrase resolves to.
type Entry struct {
	Route       string
	ExpiresAt   time.Time
	DisplayName string
}

// Severity grades a configuration diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a configuration problem found while building the registry.
// Errors leave a route inaccessible; warnings mean a default was applied.
type Diagnostic struct {
	Severity Severity
	Route    string
	Message  string
}

func (d Diagnostic) String() string {
	if d.Route == "" {
		return d.Message
	}
	return fmt.Sprintf("%s: %s", d.Route, d.Message)
}

// Registry is an immutable passphrase table. Rebuild by constructing a new one.
type Registry struct {
	entries map[string]Entry
}

// BuildRegistry folds records into a registry. contentRoutes lists routes
// known to have protectable content; any of them left without a record is
// reported as inaccessible. Records are applied in order, so the first of two
// records sharing a passphrase wins.
func BuildRegistry(records []Record, contentRoutes []string, now time.Time) (*Registry, []Diagnostic) {
	reg := &Registry{entries: make(map[string]Entry, len(records))}
	var diags []Diagnostic

	if len(records) == 0 {
		diags = append(diags, Diagnostic{
			Severity: SeverityError,
			Message:  "no route auth records found - every protected route is inaccessible",
		})
		return reg, diags
	}

	seen := make(map[string]bool, len(records)+len(reservedRoutes))
	for r := range reservedRoutes {
		seen[r] = true
	}

	for _, rec := range records {
		if reservedRoutes[rec.Route] {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Route:    rec.Route,
				Message:  fmt.Sprintf("public route has an auth record (%s) - remove it", rec.location()),
			})
			continue
		}

		seen[rec.Route] = true

		if rec.Passphrase == "" {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Route:    rec.Route,
				Message:  fmt.Sprintf("%s is missing a passphrase - route is not accessible", rec.location()),
			})
			continue
		}

		if existing, ok := reg.entries[rec.Passphrase]; ok {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Route:    rec.Route,
				Message:  fmt.Sprintf("shares a passphrase with %q - route is not accessible", existing.Route),
			})
			continue
		}

		expiresAt, ok := ParseExpiry(rec.Expires)
		if !ok {
			if rec.Expires != "" {
				diags = append(diags, Diagnostic{
					Severity: SeverityWarning,
					Route:    rec.Route,
					Message:  fmt.Sprintf("expiry %q in %s is invalid - it has been set to +364 days", rec.Expires, rec.location()),
				})
			}
			expiresAt = now.Add(DefaultExpiry)
		}

		reg.entries[rec.Passphrase] = Entry{
			Route:       rec.Route,
			ExpiresAt:   expiresAt,
			DisplayName: rec.DisplayName,
		}
	}

	missing := make(map[string]bool)
	for _, route := range contentRoutes {
		if route != "" && !seen[route] {
			missing[route] = true
		}
	}
	for _, route := range sortedKeys(missing) {
		diags = append(diags, Diagnostic{
			Severity: SeverityError,
			Route:    route,
			Message:  "has content but no auth record - route is not accessible",
		})
	}

	return reg, diags
}

// ParseExpiry parses a record expiry. ok is false when s is empty or does not
// match any accepted layout.
func ParseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Lookup returns the entry for an exact passphrase match.
func (r *Registry) Lookup(passphrase string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.entries[passphrase]
	return e, ok
}

// Len returns the number of accessible routes.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entries returns all entries sorted by route.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// EntryForRoute returns the entry bound to route, if any.
func (r *Registry) EntryForRoute(route string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	for _, e := range r.entries {
		if e.Route == route {
			return e, true
		}
	}
	return Entry{}, false
}

func (rec Record) location() string {
	if rec.Source != "" {
		return rec.Source
	}
	return "auth record"
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
