package gate

import "context"

// Policy holds the resource level rules of one resource type. Authorize
// returns nil when subject may perform action on resource. resource is nil
// for list and create checks.
type Policy[U any] interface {
	Authorize(ctx context.Context, subject U, action Action, resource any) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc[U any] func(ctx context.Context, subject U, action Action, resource any) error

func (f PolicyFunc[U]) Authorize(ctx context.Context, subject U, action Action, resource any) error {
	return f(ctx, subject, action, resource)
}
