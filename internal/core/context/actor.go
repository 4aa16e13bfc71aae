package context

import (
	"context"
	"slices"
)

// Actor is the authenticated party behind a request. Its Subject becomes the
// responsible party of movements when the caller does not name one.
type Actor struct {
	Subject string
	Name    string
	Roles   []string
}

type actorKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetSubject returns the actor subject or empty string.
func GetSubject(ctx context.Context) string {
	if a := GetActor(ctx); a != nil {
		return a.Subject
	}
	return ""
}

// HasRole checks if the actor has a specific role.
func HasRole(ctx context.Context, role string) bool {
	a := GetActor(ctx)
	return a != nil && slices.Contains(a.Roles, role)
}
