// ABOUTME: Authorizer combining credential extraction, registry lookup and token checks
// ABOUTME: Holds the passphrase registry behind an atomic pointer for wholesale rebuilds

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// DefaultRealm is the Basic challenge realm used when none is configured.
const DefaultRealm = "passgate"

// instructions is the failure message for requests carrying no credential.
const instructions = "To access this route, generate a token via Basic Authentication or a form POST, " +
	"where user={your first name} and pass={the shared passphrase} " +
	"e.g. > curl -u [firstname]:[passphrase] [url]; curl -X POST -d 'user=[firstname]&pass=[passphrase]' [url]"

// RouteSource supplies route auth records and the routes that have content.
type RouteSource interface {
	AuthRecords(ctx context.Context) ([]Record, error)
	ContentRoutes(ctx context.Context) ([]string, error)
}

// Target describes what a request is trying to reach.
type Target struct {
	// Route is the route being accessed. Empty means any route the
	// passphrase unlocks.
	Route string
	// API marks programmatic requests, which receive Basic challenges.
	API bool
}

// Config holds Authorizer options.
type Config struct {
	// BasePath prefixes the route in cookie paths. Defaults to "/".
	BasePath string
	// Realm names the Basic challenge realm. Defaults to DefaultRealm.
	Realm  string
	Logger *slog.Logger
}

// Authorizer decides whether requests may access routes.
type Authorizer struct {
	codec    *Codec
	registry atomic.Pointer[Registry]
	basePath string
	realm    string
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthorizer creates an Authorizer with an empty registry.
func NewAuthorizer(codec *Codec, cfg Config) *Authorizer {
	if cfg.BasePath == "" {
		cfg.BasePath = "/"
	}
	if cfg.Realm == "" {
		cfg.Realm = DefaultRealm
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Authorizer{
		codec:    codec,
		basePath: cfg.BasePath,
		realm:    cfg.Realm,
		logger:   cfg.Logger.With("component", "auth"),
		now:      time.Now,
	}
	a.registry.Store(&Registry{entries: map[string]Entry{}})
	return a
}

// Load builds a registry from src and swaps it in. Diagnostics are logged and
// returned; they never fail the load. On error the previous registry stays.
func (a *Authorizer) Load(ctx context.Context, src RouteSource) ([]Diagnostic, error) {
	records, err := src.AuthRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading auth records: %w", err)
	}
	content, err := src.ContentRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing content routes: %w", err)
	}
	return a.Rebuild(records, content), nil
}

// Rebuild replaces the registry with one built from records.
func (a *Authorizer) Rebuild(records []Record, contentRoutes []string) []Diagnostic {
	reg, diags := BuildRegistry(records, contentRoutes, a.now())
	for _, d := range diags {
		level := slog.LevelError
		if d.Severity == SeverityWarning {
			level = slog.LevelWarn
		}
		a.logger.Log(context.Background(), level, "route auth", "route", d.Route, "problem", d.Message)
	}

	a.registry.Store(reg)
	a.logger.Info("passphrase registry loaded", "routes", reg.Len(), "diagnostics", len(diags))
	return diags
}

// Registry returns the current registry snapshot.
func (a *Authorizer) Registry() *Registry {
	return a.registry.Load()
}

// Codec returns the token codec.
func (a *Authorizer) Codec() *Codec {
	return a.codec
}

// GetAuth extracts a credential from r and authorizes it against t.
// userHint is an optional, previously known user label.
func (a *Authorizer) GetAuth(r *http.Request, t Target, userHint string) Result {
	cred, err := Extract(r, userHint)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			return f
		}
		return newFailure(KindBadRequest, err.Error())
	}
	return a.Authorize(cred, t)
}

// Authorize decides a parsed credential. cred may be nil.
func (a *Authorizer) Authorize(cred Credential, t Target) Result {
	var res Result
	switch c := cred.(type) {
	case *FormCredential:
		res = a.VerifyCredentials(SchemeForm, c.Secret, t)
	case *BasicCredential:
		res = a.VerifyCredentials(SchemeBasic, c.Secret, t)
	case *CookieCredential:
		res = a.VerifyToken(c.Token, t)
	case *BearerCredential:
		res = a.VerifyToken(c.Token, t)
	case nil:
		f := newFailure(KindUnauthorized, instructions)
		if t.API {
			f.Challenge = a.basicChallenge()
		}
		return f
	default:
		return newFailure(KindBadRequest, "unsupported credential")
	}

	switch r := res.(type) {
	case *Verified:
		r.Scheme, r.User = cred.Scheme(), cred.Label()
	case *Failure:
		r.Scheme, r.User = cred.Scheme(), cred.Label()
	}
	return res
}

// VerifyCredentials exchanges a passphrase for a token scoped to its route.
func (a *Authorizer) VerifyCredentials(scheme Scheme, secret string, t Target) Result {
	entry, ok := a.registry.Load().Lookup(secret)
	switch {
	case !ok:
		f := newFailure(KindUnauthorized, "passphrase not found")
		if t.API && scheme == SchemeBasic {
			f.Challenge = a.basicChallenge()
		}
		return f
	case t.Route != "" && entry.Route != t.Route:
		return newFailure(KindUnauthorized, "invalid credentials")
	case entry.ExpiresAt.Before(a.now()):
		return newFailure(KindExpired, "link has expired")
	}

	token, expires, err := a.codec.Issue(entry.Route, entry.ExpiresAt)
	if err != nil {
		a.logger.Error("failed to issue token", "route", entry.Route, "error", err)
		return newFailure(KindUnauthorized, "could not issue token")
	}

	return &Verified{
		Route:     entry.Route,
		ExpiresAt: expires,
		Token:     token,
		SetCookie: a.cookie(entry.Route, token, expires),
	}
}

// VerifyToken checks a previously issued token against t.Route. Nothing new
// is issued.
func (a *Authorizer) VerifyToken(token string, t Target) Result {
	claim, err := a.codec.Verify(token, t.Route)
	switch {
	case err == nil:
		return &Verified{Route: t.Route, ExpiresAt: claim.ExpiresAt}
	case errors.Is(err, ErrExpiredToken):
		return newFailure(KindExpired, ErrExpiredToken.Error())
	case errors.Is(err, ErrRouteMismatch):
		return newFailure(KindUnauthorized, ErrRouteMismatch.Error())
	default:
		a.logger.Debug("token rejected", "route", t.Route, "error", err)
		return newFailure(KindUnauthorized, ErrInvalidToken.Error())
	}
}

// cookie formats the Set-Cookie directive carrying token for route.
func (a *Authorizer) cookie(route, token string, expires time.Time) string {
	return fmt.Sprintf(`%s="%s"; HttpOnly; Secure; Path=%s%s; SameSite=Strict; Expires=%s`,
		CookieName, token, a.basePath, route, expires.UTC().Format(http.TimeFormat))
}

func (a *Authorizer) basicChallenge() http.Header {
	h := make(http.Header)
	h.Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s", charset="UTF-8"`, a.realm))
	return h
}
