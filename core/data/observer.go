package data

import (
	"context"
	"reflect"
	"time"
)

// Observer is notified around every producer invocation.
type Observer interface {
	ComputeStarted(typ reflect.Type)
	ComputeFinished(typ reflect.Type, elapsed time.Duration, err error)
}

type observerKey struct{}

// WithObserver returns a context carrying obs. Computations started by an
// Await on that context report to obs.
func WithObserver(ctx context.Context, obs Observer) context.Context {
	return context.WithValue(ctx, observerKey{}, obs)
}

// ObserverFrom returns the observer carried by ctx, or a no-op observer.
func ObserverFrom(ctx context.Context) Observer {
	if obs, ok := ctx.Value(observerKey{}).(Observer); ok && obs != nil {
		return obs
	}
	return nopObserver{}
}

type nopObserver struct{}

func (nopObserver) ComputeStarted(reflect.Type)                         {}
func (nopObserver) ComputeFinished(reflect.Type, time.Duration, error) {}
