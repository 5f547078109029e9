package gate

import "errors"

var (
	// ErrUnauthenticated is returned when no subject is given.
	ErrUnauthenticated = errors.New("gate: unauthenticated")
	// ErrDenied is returned when the profile or a policy refuses the action.
	ErrDenied = errors.New("gate: denied")
	// ErrNoPolicyDefined is returned by a gate without a resolver when the
	// resource type has no policy.
	ErrNoPolicyDefined = errors.New("gate: no policy defined for resource")
)
