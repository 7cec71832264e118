// ABOUTME: Credential extraction from HTTP requests: form body, cookie, then header
// ABOUTME: Parses Basic and Bearer Authorization headers and the Authorization cookie

package auth

import (
	"encoding/base64"
	"net/http"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// CookieName is the cookie carrying an issued token.
	CookieName = "Authorization"

	// maxFormMemory bounds multipart form parsing held in memory.
	maxFormMemory = 1 << 20
)

// Extract reads a credential from r, trying the form body, the Authorization
// cookie and the Authorization header in that order. userHint is a previously
// known user label used to label cookie sessions.
//
// It returns (nil, nil) when the request carries no credential. A non-nil
// error is always a *Failure of kind KindBadRequest.
func Extract(r *http.Request, userHint string) (Credential, error) {
	if cred, err := formCredential(r); cred != nil || err != nil {
		return cred, err
	}
	if cred, err := cookieCredential(r, userHint); cred != nil || err != nil {
		return cred, err
	}
	return headerCredential(r.Header.Get("Authorization"))
}

// readForm parses a form encoded body once; later calls reuse the values
// cached on the request. Returns nil when the body isn't form encoded.
func readForm(r *http.Request) (map[string][]string, error) {
	contentType := r.Header.Get("Content-Type")
	if !strings.Contains(contentType, "form") {
		return nil, nil
	}

	if r.PostForm == nil {
		var err error
		if strings.HasPrefix(contentType, "multipart/") {
			err = r.ParseMultipartForm(maxFormMemory)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return nil, newFailure(KindBadRequest, "malformed form body")
		}
	}
	return r.PostForm, nil
}

func formCredential(r *http.Request) (Credential, error) {
	form, err := readForm(r)
	if err != nil || form == nil {
		return nil, err
	}

	pass := firstValue(form, "pass")
	if pass == "" {
		return nil, nil
	}

	return &FormCredential{
		Secret: pass,
		User:   SanitizeUser(firstValue(form, "user")),
	}, nil
}

// formUser resolves the user field of a form body without requiring a
// passphrase. ok reports whether a non-empty user field was posted.
func formUser(r *http.Request) (user string, ok bool, err error) {
	form, err := readForm(r)
	if err != nil || form == nil {
		return "", false, err
	}

	raw := firstValue(form, "user")
	if raw == "" {
		return "", false, nil
	}
	return SanitizeUser(raw), true, nil
}

func cookieCredential(r *http.Request, userHint string) (Credential, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	cred := &CookieCredential{Token: cookie.Value}

	user, posted, err := formUser(r)
	if err != nil {
		return nil, err
	}
	if posted || userHint != "" {
		cred.User = firstNonEmpty(user, userHint, anonUser)
	}
	return cred, nil
}

// headerCredential parses an Authorization header value.
func headerCredential(header string) (Credential, error) {
	if header == "" {
		return nil, nil
	}

	parts := strings.Split(header, " ")
	scheme := parts[0]
	var encoded string
	if len(parts) > 1 {
		encoded = parts[1]
	}

	if encoded == "" || (scheme != "Bearer" && scheme != "Basic") {
		return nil, newFailure(KindBadRequest, "malformed Authorization header")
	}

	if scheme == "Bearer" {
		return &BearerCredential{Token: encoded}, nil
	}

	user, pass, err := decodeBasic(encoded)
	if err != nil {
		return nil, err
	}

	return &BasicCredential{
		Secret: pass,
		User:   firstNonEmpty(SanitizeUser(user), anonUser),
	}, nil
}

// decodeBasic decodes a Basic credential payload, normalizes it to NFC and
// splits it on the first colon. Control characters are rejected (RFC 7617).
// Payloads with their padding stripped are accepted.
func decodeBasic(encoded string) (user, pass string, err error) {
	enc := base64.StdEncoding
	if len(encoded)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	raw, decErr := enc.DecodeString(encoded)
	if decErr != nil {
		return "", "", newFailure(KindBadRequest, "invalid credentials")
	}

	decoded := norm.NFC.String(strings.ToValidUTF8(string(raw), "\uFFFD"))

	idx := strings.IndexByte(decoded, ':')
	if idx < 0 || hasControlChar(decoded) {
		return "", "", newFailure(KindBadRequest, "invalid credentials")
	}
	return decoded[:idx], decoded[idx+1:], nil
}

func hasControlChar(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}

func firstValue(form map[string][]string, key string) string {
	if vs := form[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
