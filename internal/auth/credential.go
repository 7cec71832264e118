// ABOUTME: Credential variants parsed from a request: form, cookie, bearer, basic
// ABOUTME: Each variant carries either a passphrase secret or a previously issued token

package auth

import "strings"

// Scheme names the transport a credential arrived on.
type Scheme string

const (
	SchemeForm   Scheme = "form"
	SchemeCookie Scheme = "cookie"
	SchemeBearer Scheme = "bearer"
	SchemeBasic  Scheme = "basic"
)

// maxUserLength caps sanitized user labels.
const maxUserLength = 20

// anonUser is the label used when a user context exists but carries no name.
const anonUser = "anon"

// Credential is one of *FormCredential, *BasicCredential, *CookieCredential
// or *BearerCredential.
type Credential interface {
	Scheme() Scheme
	// Label returns the sanitized user label, or "" when none was supplied.
	Label() string
	credential()
}

// FormCredential is a passphrase posted as a form field.
type FormCredential struct {
	Secret string
	User   string
}

// BasicCredential is a passphrase from an Authorization: Basic header.
// User is never empty; it defaults to "anon".
type BasicCredential struct {
	Secret string
	User   string
}

// CookieCredential is a token from the Authorization cookie.
type CookieCredential struct {
	Token string
	User  string
}

// BearerCredential is a token from an Authorization: Bearer header.
type BearerCredential struct {
	Token string
}

func (*FormCredential) Scheme() Scheme   { return SchemeForm }
func (*BasicCredential) Scheme() Scheme  { return SchemeBasic }
func (*CookieCredential) Scheme() Scheme { return SchemeCookie }
func (*BearerCredential) Scheme() Scheme { return SchemeBearer }

func (c *FormCredential) Label() string   { return c.User }
func (c *BasicCredential) Label() string  { return c.User }
func (c *CookieCredential) Label() string { return c.User }
func (*BearerCredential) Label() string   { return "" }

func (*FormCredential) credential()   {}
func (*BasicCredential) credential()  {}
func (*CookieCredential) credential() {}
func (*BearerCredential) credential() {}

// SanitizeUser keeps only ASCII letters, truncates to 20 characters and
// lowercases the result.
func SanitizeUser(user string) string {
	var b strings.Builder
	for i := 0; i < len(user) && b.Len() < maxUserLength; i++ {
		c := user[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			b.WriteByte(c)
		}
	}
	return strings.ToLower(b.String())
}
