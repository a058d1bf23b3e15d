package service

import (
	"fmt"

	"github.com/wippyai/hle/errors"
)

// Ref is a non-owning reference to a shared service, resolved by name on
// first use. The target may be absent until then. Ref is not safe for
// concurrent use; it is resolved with the owning instance locked.
type Ref[T any] struct {
	val      T
	Name     string
	resolved bool
}

// Resolve returns the referenced service, looking it up through env once.
func (r *Ref[T]) Resolve(env Env) (T, error) {
	var zero T
	if r.resolved {
		return r.val, nil
	}
	if env == nil {
		return zero, errors.NotInitialized(errors.PhaseDispatch, "service environment")
	}
	svc, err := env.Shared(r.Name)
	if err != nil {
		return zero, err
	}
	v, ok := svc.(T)
	if !ok {
		return zero, errors.TypeMismatch(errors.PhaseDispatch, fmt.Sprintf("%T", (*T)(nil)), fmt.Sprintf("%T", svc))
	}
	r.val, r.resolved = v, true
	return v, nil
}

// Set binds the reference directly, bypassing name resolution.
func (r *Ref[T]) Set(v T) {
	r.val, r.resolved = v, true
}

// Resolved reports whether the reference has been bound.
func (r *Ref[T]) Resolved() bool { return r.resolved }
