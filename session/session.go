// Package session carries the bearer token and tenant scope supplied by the
// caller's auth provider. This module never issues or refreshes tokens.
package session

import (
	"context"
	"strings"
)

// Session is the pair every authenticated request needs.
type Session struct {
	Token string
	// Scope is the tenant/business-unit code partitioning requests and cache keys.
	Scope string
}

// Ready reports whether both token and scope are present.
func (s Session) Ready() bool {
	return strings.TrimSpace(s.Token) != "" && strings.TrimSpace(s.Scope) != ""
}

// Missing lists the absent fields, for error messages.
func (s Session) Missing() []string {
	var missing []string
	if strings.TrimSpace(s.Token) == "" {
		missing = append(missing, "token")
	}
	if strings.TrimSpace(s.Scope) == "" {
		missing = append(missing, "scope")
	}
	return missing
}

// Provider resolves the current session, e.g. from a login context.
type Provider interface {
	Session(ctx context.Context) (Session, error)
}

// Static always returns the same session.
type Static Session

// Session implements Provider.
func (s Static) Session(context.Context) (Session, error) {
	return Session(s), nil
}

type sessionContextKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the session attached to ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(Session)
	return s, ok
}

// ContextProvider reads the session attached with WithSession.
type ContextProvider struct{}

// Session implements Provider. A context without a session yields an empty
// session, which callers treat as "not ready".
func (ContextProvider) Session(ctx context.Context) (Session, error) {
	s, _ := FromContext(ctx)
	return s, nil
}
