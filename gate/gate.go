// Package gate provides a small Gate/Policy authorization system.
// The Gate is a central registry of policies; each Policy defines authorization
// rules for a specific resource type. This package has no dependencies on
// domain models.
//
// The package uses generics so the subject can be any comparable type:
//   - Gate[uint] for user ID based auth
//   - Gate[*User] for full user struct based auth
package gate

import "context"

// Gate is the central authorization checkpoint.
// U is the user/subject type; its zero value means "anonymous".
// Register policies by resource type name, then call Authorize or Can.
type Gate[U comparable] struct {
	policies map[string]Policy[U]
	guest    map[Permission]bool
}

// NewGate creates an empty Gate ready to register policies.
func NewGate[U comparable]() *Gate[U] {
	return &Gate[U]{
		policies: make(map[string]Policy[U]),
		guest:    make(map[Permission]bool),
	}
}

// Register adds a policy for a given resource type (e.g., "task").
// Overwrites any existing policy for that type.
func (g *Gate[U]) Register(resourceType string, p Policy[U]) {
	g.policies[resourceType] = p
}

// AllowGuest lets anonymous subjects perform action on resourceType.
// Account registration is the typical use.
func (g *Gate[U]) AllowGuest(resourceType string, action Action) {
	g.guest[NewPermission(resourceType, action)] = true
}

// Authorize checks authorization and returns an error if denied.
// Returns ErrUnauthenticated for an anonymous subject (unless the action is
// a guest action), ErrNoPolicyDefined if resourceType has no registered
// policy and ErrForbidden when the policy denies.
func (g *Gate[U]) Authorize(ctx context.Context, user U, action Action, resourceType string, resource any) error {
	var zero U
	if user == zero {
		if g.guest[NewPermission(resourceType, action)] {
			return nil
		}
		return ErrUnauthenticated
	}
	p, ok := g.policies[resourceType]
	if !ok {
		return ErrNoPolicyDefined
	}
	if !p.Can(ctx, user, action, resource) {
		return ErrForbidden
	}
	return nil
}

// Can is a convenience wrapper returning bool instead of error.
func (g *Gate[U]) Can(ctx context.Context, user U, action Action, resourceType string, resource any) bool {
	return g.Authorize(ctx, user, action, resourceType, resource) == nil
}
