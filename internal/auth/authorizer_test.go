// ABOUTME: Tests for authorization decisions on the passphrase and token paths
// ABOUTME: Includes the end-to-end exchange of a passphrase for a route cookie

package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthorizer(t *testing.T, records ...Record) *Authorizer {
	t.Helper()
	a := NewAuthorizer(newTestCodec(t, testSecret), Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	a.Rebuild(records, nil)
	return a
}

func requireVerified(t *testing.T, res Result) *Verified {
	t.Helper()
	v, ok := res.(*Verified)
	require.True(t, ok, "result %#v is not *Verified", res)
	return v
}

func requireFailure(t *testing.T, res Result, kind Kind) *Failure {
	t.Helper()
	f, ok := res.(*Failure)
	require.True(t, ok, "result %#v is not *Failure", res)
	assert.Equal(t, kind, f.Kind)
	return f
}

func TestGetAuth_EndToEnd(t *testing.T) {
	a := newTestAuthorizer(t, Record{Route: "vip", Passphrase: "golden"})

	req := httptest.NewRequest(http.MethodGet, "/vip", nil)
	req.Header.Set("Authorization", basicHeader("vip-user:golden"))

	v := requireVerified(t, a.GetAuth(req, Target{Route: "vip"}, ""))
	assert.Equal(t, "vip", v.Route)
	assert.Equal(t, SchemeBasic, v.Scheme)
	assert.Equal(t, "vipuser", v.User)
	require.NotEmpty(t, v.Token)
	assert.Contains(t, v.SetCookie, "Path=/vip;")
	assert.Contains(t, v.SetCookie, `Authorization="`+v.Token+`"`)
	assert.Contains(t, v.SetCookie, "HttpOnly; Secure;")
	assert.Contains(t, v.SetCookie, "SameSite=Strict;")
	assert.Contains(t, v.SetCookie, "Expires="+v.ExpiresAt.UTC().Format(http.TimeFormat))

	// The issued cookie now authorizes the same route.
	next := httptest.NewRequest(http.MethodGet, "/vip/page", nil)
	next.Header.Set("Cookie", `Authorization="`+v.Token+`"`)
	again := requireVerified(t, a.GetAuth(next, Target{Route: "vip"}, ""))
	assert.Equal(t, "vip", again.Route)
	assert.Equal(t, SchemeCookie, again.Scheme)
	assert.Empty(t, again.Token, "token verification must not issue a new token")
	assert.Empty(t, again.SetCookie)
	assert.WithinDuration(t, v.ExpiresAt, again.ExpiresAt, time.Second)

	// But never another route.
	other := httptest.NewRequest(http.MethodGet, "/other", nil)
	other.Header.Set("Cookie", `Authorization="`+v.Token+`"`)
	requireFailure(t, a.GetAuth(other, Target{Route: "other"}, ""), KindUnauthorized)
}

func TestGetAuth_FormPost(t *testing.T) {
	a := newTestAuthorizer(t, Record{Route: "docs", Passphrase: "letmein"})

	req := httptest.NewRequest(http.MethodPost, "/docs", strings.NewReader(url.Values{
		"user": {"Grace"},
		"pass": {"letmein"},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	v := requireVerified(t, a.GetAuth(req, Target{Route: "docs"}, ""))
	assert.Equal(t, SchemeForm, v.Scheme)
	assert.Equal(t, "grace", v.User)
	assert.NotEmpty(t, v.SetCookie)
}

func TestGetAuth_MalformedHeader(t *testing.T) {
	a := newTestAuthorizer(t, Record{Route: "docs", Passphrase: "letmein"})

	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	req.Header.Set("Authorization", "Weird xyz")

	f := requireFailure(t, a.GetAuth(req, Target{Route: "docs"}, ""), KindBadRequest)
	assert.Equal(t, http.StatusBadRequest, f.HTTPStatus())
}

func TestGetAuth_MalformedFormBody(t *testing.T) {
	a := newTestAuthorizer(t, Record{Route: "docs", Passphrase: "letmein"})

	req := httptest.NewRequest(http.MethodPost, "/docs", strings.NewReader("pass=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer abc")

	f := requireFailure(t, a.GetAuth(req, Target{Route: "docs"}, ""), KindBadRequest)
	assert.Equal(t, "malformed form body", f.Message)
	assert.Equal(t, http.StatusBadRequest, f.HTTPStatus())
}

func TestAuthorize_NoCredential(t *testing.T) {
	a := newTestAuthorizer(t)

	f := requireFailure(t, a.Authorize(nil, Target{Route: "docs"}), KindUnauthorized)
	assert.Contains(t, f.Message, "curl -u")
	assert.Nil(t, f.Challenge, "non-API requests get no challenge")

	f = requireFailure(t, a.Authorize(nil, Target{Route: "docs", API: true}), KindUnauthorized)
	assert.Equal(t, `Basic realm="passgate", charset="UTF-8"`, f.Challenge.Get("WWW-Authenticate"))
}

func TestVerifyCredentials_Failures(t *testing.T) {
	a := newTestAuthorizer(t,
		Record{Route: "docs", Passphrase: "letmein"},
		Record{Route: "old", Passphrase: "bygone", Expires: "2001-01-01"},
	)

	t.Run("unknown passphrase", func(t *testing.T) {
		f := requireFailure(t, a.Authorize(&FormCredential{Secret: "nope"}, Target{Route: "docs"}), KindUnauthorized)
		assert.Equal(t, "passphrase not found", f.Message)
		assert.Nil(t, f.Challenge)
	})

	t.Run("unknown passphrase over basic API", func(t *testing.T) {
		f := requireFailure(t, a.Authorize(&BasicCredential{Secret: "nope", User: "anon"}, Target{Route: "docs", API: true}), KindUnauthorized)
		assert.NotEmpty(t, f.Challenge.Get("WWW-Authenticate"))
		assert.Equal(t, SchemeBasic, f.Scheme)
		assert.Equal(t, "anon", f.User)
	})

	t.Run("unknown passphrase over form API", func(t *testing.T) {
		f := requireFailure(t, a.Authorize(&FormCredential{Secret: "nope"}, Target{Route: "docs", API: true}), KindUnauthorized)
		assert.Nil(t, f.Challenge, "only Basic callers are challenged")
	})

	t.Run("passphrase for another route", func(t *testing.T) {
		f := requireFailure(t, a.Authorize(&FormCredential{Secret: "letmein"}, Target{Route: "vip"}), KindUnauthorized)
		assert.Equal(t, "invalid credentials", f.Message)
	})

	t.Run("expired route", func(t *testing.T) {
		f := requireFailure(t, a.Authorize(&FormCredential{Secret: "bygone"}, Target{Route: "old"}), KindExpired)
		assert.Equal(t, "link has expired", f.Message)
		assert.Equal(t, http.StatusForbidden, f.HTTPStatus())
	})
}

func TestVerifyCredentials_AnyRoute(t *testing.T) {
	a := newTestAuthorizer(t, Record{Route: "docs", Passphrase: "letmein"})

	v := requireVerified(t, a.VerifyCredentials(SchemeForm, "letmein", Target{}))
	assert.Equal(t, "docs", v.Route)
	assert.Contains(t, v.SetCookie, "Path=/docs;")
}

func TestVerifyCredentials_CookiePathUsesBase(t *testing.T) {
	a := NewAuthorizer(newTestCodec(t, testSecret), Config{
		BasePath: "/site/",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	a.Rebuild([]Record{{Route: "docs", Passphrase: "letmein"}}, nil)

	v := requireVerified(t, a.VerifyCredentials(SchemeBasic, "letmein", Target{Route: "docs"}))
	assert.Contains(t, v.SetCookie, "Path=/site/docs;")
}

func TestVerifyToken_Failures(t *testing.T) {
	a := newTestAuthorizer(t, Record{Route: "docs", Passphrase: "letmein"})

	t.Run("garbage", func(t *testing.T) {
		f := requireFailure(t, a.Authorize(&BearerCredential{Token: "abc.def"}, Target{Route: "docs"}), KindUnauthorized)
		assert.Equal(t, "invalid token", f.Message)
		assert.Equal(t, SchemeBearer, f.Scheme)
	})

	t.Run("expired", func(t *testing.T) {
		token, _, err := a.Codec().Issue("docs", time.Now().Add(-time.Minute))
		require.NoError(t, err)

		f := requireFailure(t, a.Authorize(&CookieCredential{Token: token, User: "ivan"}, Target{Route: "docs"}), KindExpired)
		assert.Equal(t, "ivan", f.User)
	})

	t.Run("no target route", func(t *testing.T) {
		token, _, err := a.Codec().Issue("docs", time.Now().Add(time.Hour))
		require.NoError(t, err)

		requireFailure(t, a.VerifyToken(token, Target{}), KindUnauthorized)
	})
}

type fakeSource struct {
	records []Record
	content []string
	err     error
}

func (s *fakeSource) AuthRecords(context.Context) ([]Record, error) { return s.records, s.err }
func (s *fakeSource) ContentRoutes(context.Context) ([]string, error) {
	return s.content, nil
}

func TestAuthorizer_LoadSwapsRegistry(t *testing.T) {
	a := newTestAuthorizer(t, Record{Route: "docs", Passphrase: "letmein"})
	before := a.Registry()

	diags, err := a.Load(context.Background(), &fakeSource{
		records: []Record{{Route: "vip", Passphrase: "golden"}},
		content: []string{"vip", "orphan"},
	})
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "orphan", diags[0].Route)

	assert.NotSame(t, before, a.Registry())
	_, ok := a.Registry().Lookup("letmein")
	assert.False(t, ok, "rebuild replaces the table wholesale")
	_, ok = before.Lookup("letmein")
	assert.True(t, ok, "previous snapshot is never mutated")

	requireVerified(t, a.VerifyCredentials(SchemeForm, "golden", Target{Route: "vip"}))
}

func TestAuthorizer_LoadErrorKeepsRegistry(t *testing.T) {
	a := newTestAuthorizer(t, Record{Route: "docs", Passphrase: "letmein"})
	before := a.Registry()

	_, err := a.Load(context.Background(), &fakeSource{err: errors.New("disk gone")})
	require.Error(t, err)
	assert.Same(t, before, a.Registry())
}

func TestAuthorizer_ConcurrentRebuild(t *testing.T) {
	a := newTestAuthorizer(t, Record{Route: "docs", Passphrase: "letmein"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.Rebuild([]Record{{Route: "docs", Passphrase: "letmein"}}, nil)
		}()
		go func() {
			defer wg.Done()
			res := a.VerifyCredentials(SchemeForm, "letmein", Target{Route: "docs"})
			if _, ok := res.(*Verified); !ok {
				t.Errorf("VerifyCredentials() = %#v during rebuild", res)
			}
		}()
	}
	wg.Wait()
}
