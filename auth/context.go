// Package auth verifies employer access tokens and carries their claims
// through the request context.
package auth

import (
	"context"
	"strings"
	"time"
)

type ctxKey int

const claimsKey ctxKey = iota

// Claims contains the verified token details billing needs. Subject is the
// account id.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Scope     string
	Raw       map[string]any
}

// Email returns the email claim, if present.
func (c *Claims) Email() string {
	return c.stringClaim("email")
}

func (c *Claims) stringClaim(key string) string {
	if c == nil || c.Raw == nil {
		return ""
	}
	if s, ok := c.Raw[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// WithClaims stores auth claims in a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns claims from a context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}
