// Package gate is a small authorization layer combining profile
// permissions ("resource:action" with wildcards) and resource policies.
// It has no knowledge of the portal domain.
//
// The subject type is generic: a gate can authorize user ids, claims or a
// full principal struct.
package gate

import (
	"context"
	"fmt"
)

// Gate checks a subject against its profile and the policy of the
// resource type.
//
// With a resolver, the profile must grant "resource:action" and the policy,
// when one is registered and a resource is given, must accept. Without a
// resolver only policies decide and every resource type needs one.
type Gate[U comparable] struct {
	resolver ProfileResolver[U]
	policies map[string]Policy[U]
}

// New returns a gate. resolver may be nil.
func New[U comparable](resolver ProfileResolver[U]) *Gate[U] {
	return &Gate[U]{resolver: resolver, policies: make(map[string]Policy[U])}
}

// Register sets the policy of a resource type, replacing any previous one.
func (g *Gate[U]) Register(resourceType string, p Policy[U]) {
	g.policies[resourceType] = p
}

// Authorize returns nil when subject may perform action. Denials wrap
// ErrDenied unless the policy returned a more specific error.
func (g *Gate[U]) Authorize(ctx context.Context, subject U, action Action, resourceType string, resource any) error {
	var zero U
	if subject == zero {
		return ErrUnauthenticated
	}
	policy, hasPolicy := g.policies[resourceType]
	if g.resolver == nil {
		if !hasPolicy {
			return ErrNoPolicyDefined
		}
		return policy.Authorize(ctx, subject, action, resource)
	}
	if err := g.checkProfile(ctx, subject, NewPermission(resourceType, action)); err != nil {
		return err
	}
	if hasPolicy && resource != nil {
		return policy.Authorize(ctx, subject, action, resource)
	}
	return nil
}

func (g *Gate[U]) checkProfile(ctx context.Context, subject U, perm Permission) error {
	profile, err := g.resolver.Resolve(ctx, subject)
	if err != nil {
		return fmt.Errorf("gate: resolve profile: %w", err)
	}
	if profile == nil {
		return fmt.Errorf("%w: no profile", ErrDenied)
	}
	if !profile.HasPermission(perm) {
		return fmt.Errorf("%w: %s not granted to %s", ErrDenied, perm, profile.Name())
	}
	return nil
}

// Can reports whether Authorize succeeds.
func (g *Gate[U]) Can(ctx context.Context, subject U, action Action, resourceType string, resource any) bool {
	return g.Authorize(ctx, subject, action, resourceType, resource) == nil
}

// CanProfile checks the profile permission only, e.g. to decide which
// actions a listing offers before a resource is loaded.
func (g *Gate[U]) CanProfile(ctx context.Context, subject U, action Action, resourceType string) bool {
	var zero U
	if subject == zero || g.resolver == nil {
		return false
	}
	return g.checkProfile(ctx, subject, NewPermission(resourceType, action)) == nil
}
