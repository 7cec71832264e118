// ABOUTME: Request context carrying the verified authorization result
// ABOUTME: Provides WithVerified/VerifiedFromContext for downstream handlers

package auth

import (
	"context"
)

// verifiedKey is the key type for storing a *Verified in context.Context.
type verifiedKey struct{}

// WithVerified returns a new context with the verified result attached.
func WithVerified(ctx context.Context, v *Verified) context.Context {
	return context.WithValue(ctx, verifiedKey{}, v)
}

// VerifiedFromContext retrieves the verified result, returning nil if the
// request was not authorized (or the route is public).
func VerifiedFromContext(ctx context.Context) *Verified {
	v, ok := ctx.Value(verifiedKey{}).(*Verified)
	if !ok {
		return nil
	}
	return v
}

// MustVerifiedFromContext retrieves the verified result, panicking if not present.
func MustVerifiedFromContext(ctx context.Context) *Verified {
	v := VerifiedFromContext(ctx)
	if v == nil {
		panic("auth: Verified not found in context")
	}
	return v
}
