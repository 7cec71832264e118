// ABOUTME: Authorization outcomes: a request is either Verified or a typed Failure
// ABOUTME: Failure kinds map onto HTTP status codes for the calling handler

package auth

import (
	"net/http"
	"time"
)

// Kind classifies an authorization failure.
type Kind int

const (
	// KindUnauthorized covers unknown passphrases, route mismatches, bad
	// tokens and requests carrying no credential at all.
	KindUnauthorized Kind = iota
	// KindBadRequest covers malformed Authorization headers and Basic payloads.
	KindBadRequest
	// KindExpired covers registry entries and tokens past their expiry.
	KindExpired
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the status code a handler should answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindExpired:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

// Result is the outcome of authorizing one request. It is always exactly one
// of *Verified or *Failure.
type Result interface {
	result()
}

// Verified is a successful authorization.
type Verified struct {
	Route     string
	ExpiresAt time.Time
	Scheme    Scheme
	User      string

	// Token and SetCookie are only populated when a passphrase was exchanged
	// for a new token. Token verification never issues a new one.
	Token     string
	SetCookie string
}

// Failure is a rejected authorization. It implements error so handlers can
// pass it along wherever an error is expected.
type Failure struct {
	Kind    Kind
	Message string
	Scheme  Scheme
	User    string

	// Challenge holds headers to send with the response, typically a
	// WWW-Authenticate Basic challenge for API clients.
	Challenge http.Header
}

func (*Verified) result() {}
func (*Failure) result()  {}

func (f *Failure) Error() string {
	return f.Message
}

// HTTPStatus returns the status code for the failure's kind.
func (f *Failure) HTTPStatus() int {
	return f.Kind.HTTPStatus()
}

func newFailure(kind Kind, msg string) *Failure {
	return &Failure{Kind: kind, Message: msg}
}
