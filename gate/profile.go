package gate

import (
	"context"
	"slices"
)

// Profile is a named set of permissions.
type Profile interface {
	Name() string
	HasPermission(permission Permission) bool
	Permissions() []Permission
}

// ProfileResolver finds the profile of a subject. A nil profile with a nil
// error means the subject has none.
type ProfileResolver[U any] interface {
	Resolve(ctx context.Context, subject U) (Profile, error)
}

// ResolverFunc adapts a function to ProfileResolver.
type ResolverFunc[U any] func(ctx context.Context, subject U) (Profile, error)

func (f ResolverFunc[U]) Resolve(ctx context.Context, subject U) (Profile, error) {
	return f(ctx, subject)
}

// StaticProfile is an in-memory profile.
type StaticProfile struct {
	name        string
	permissions []Permission
}

// NewStaticProfile builds a profile, dropping malformed and duplicate
// permissions.
func NewStaticProfile(name string, permissions ...Permission) *StaticProfile {
	p := &StaticProfile{name: name}
	for _, perm := range permissions {
		if perm.Valid() && !slices.Contains(p.permissions, perm) {
			p.permissions = append(p.permissions, perm)
		}
	}
	slices.Sort(p.permissions)
	return p
}

func (p *StaticProfile) Name() string { return p.name }

// Permissions returns the sorted permissions of the profile.
func (p *StaticProfile) Permissions() []Permission { return slices.Clone(p.permissions) }

func (p *StaticProfile) HasPermission(requested Permission) bool {
	return slices.ContainsFunc(p.permissions, func(perm Permission) bool { return perm.Matches(requested) })
}

// StaticResolver maps keys derived from subjects to profiles.
type StaticResolver[U any, K comparable] struct {
	key      func(U) K
	profiles map[K]Profile
}

func NewStaticResolver[U any, K comparable](key func(U) K) *StaticResolver[U, K] {
	return &StaticResolver[U, K]{key: key, profiles: make(map[K]Profile)}
}

// Set assigns a profile to a key.
func (r *StaticResolver[U, K]) Set(key K, profile Profile) { r.profiles[key] = profile }

func (r *StaticResolver[U, K]) Resolve(_ context.Context, subject U) (Profile, error) {
	return r.profiles[r.key(subject)], nil
}
