package policy

import (
	"context"
	"slices"
)

// Viewer represents the authenticated caller a request is compiled for.
// The request layer implements this with its own user type.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
}

// viewerCtxKey is the context key for storing the viewer.
type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
// Use this for testing or simple use cases.
type SimpleViewer struct {
	UserID string
	Roles  []string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string {
	return v.UserID
}

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string {
	return v.Roles
}

// AnonymousRole is the role compiled for when the context carries no
// viewer.
const AnonymousRole = "anonymous"

// RoleFromContext returns the viewer's first role, or AnonymousRole when
// the context has no viewer or the viewer has no roles.
func RoleFromContext(ctx context.Context) string {
	v := ViewerFromContext(ctx)
	if v == nil {
		return AnonymousRole
	}
	roles := v.GetRoles()
	if len(roles) == 0 {
		return AnonymousRole
	}
	return roles[0]
}

// HasRole reports whether the context's viewer carries the role.
func HasRole(ctx context.Context, role string) bool {
	v := ViewerFromContext(ctx)
	return v != nil && slices.Contains(v.GetRoles(), role)
}
