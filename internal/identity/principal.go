// Package identity reads principals from the external user store.
package identity

import "context"

// Principal describes the authenticated actor as supplied by the user store.
type Principal struct {
	ID        int64
	Username  string
	Clearance string
	District  string
	Staff     bool
	Superuser bool
}

// SystemOverride reports whether the principal carries the administrative escape
// capability. It is the only place the staff/superuser flags are consulted.
func (p Principal) SystemOverride() bool {
	return p.Staff || p.Superuser
}

// Attributes exposes principal attributes used by attribute-based rules.
func (p Principal) Attributes() map[string]string {
	attrs := make(map[string]string, 2)
	if p.Clearance != "" {
		attrs["clearance"] = p.Clearance
	}
	if p.District != "" {
		attrs["district"] = p.District
	}
	return attrs
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
