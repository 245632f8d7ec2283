package auth

import "context"

// Identity is the authenticated caller as asserted by a session token.
type Identity struct {
	UserID              int64
	Username            string
	IsAdmin             bool
	IsOrganizer         bool
	IsApprovedOrganizer bool
}

// Owns reports whether the identity is username or an admin.
func (id *Identity) Owns(username string) bool {
	if id == nil {
		return false
	}
	return id.IsAdmin || (username != "" && id.Username == username)
}

type identityKey struct{}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, or nil for anonymous requests.
func FromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok {
		return nil
	}
	return &id
}
