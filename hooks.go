package tablestore

import (
	"context"
)

// BeforeCreateInterface is implemented by models that validate or default
// fields before Repository.Create issues the insert. A returned error aborts
// the insert.
type BeforeCreateInterface interface {
	BeforeCreate(context.Context) error
}

// AfterCreateInterface is implemented by models that react to a completed
// insert; the generated key is already set when it runs.
type AfterCreateInterface interface {
	AfterCreate(context.Context) error
}

// trigger calls fn when model implements the hook interface H.
func trigger[H any](model any, fn func(H) error) error {
	if h, ok := model.(H); ok {
		return fn(h)
	}
	return nil
}

func beforeCreate(ctx context.Context, model any) error {
	return trigger(model, func(h BeforeCreateInterface) error { return h.BeforeCreate(ctx) })
}

func afterCreate(ctx context.Context, model any) error {
	return trigger(model, func(h AfterCreateInterface) error { return h.AfterCreate(ctx) })
}
