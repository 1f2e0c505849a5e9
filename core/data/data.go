// Package data provides lazily computed, memoized values (Data) organized
// into addressable trees.
//
// A Data holds a Meta and a producer. The producer runs at most once, on
// the first Await; every caller observes the same result or failure:
//
//	d := data.New(meta.Empty, func(ctx context.Context) (int, error) {
//		return expensive(ctx)
//	})
//	v, err := d.Await(ctx)
//
// Trees are built with a MutableTree (or any Builder) and consumed with
// Flow, GetItem, ListChildren and Branch.
package data

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/artpar/dataforge/core/meta"
)

// Producer computes the value of a Data.
type Producer[T any] func(ctx context.Context) (T, error)

// PanicError wraps a panic raised by a producer.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("data: producer panicked: %v", e.Value)
}

// Data is a lazily computed value with attached metadata.
// Data is identified by pointer; copies must not be made.
type Data[T any] struct {
	meta     meta.Meta
	typ      reflect.Type
	producer Producer[T]

	group singleflight.Group

	mu    sync.Mutex
	done  bool
	value T
	err   error
}

// New creates a lazy Data whose declared type is T.
func New[T any](m meta.Meta, producer Producer[T]) *Data[T] {
	return NewTyped(reflect.TypeFor[T](), m, producer)
}

// NewTyped creates a lazy Data declaring a more specific runtime type than
// T, e.g. a concrete type behind an interface T. It panics if typ is not
// assignable to T.
func NewTyped[T any](typ reflect.Type, m meta.Meta, producer Producer[T]) *Data[T] {
	if typ == nil || !typ.AssignableTo(reflect.TypeFor[T]()) {
		panic(fmt.Sprintf("data: declared type %v is not assignable to %v", typ, reflect.TypeFor[T]()))
	}
	if m == nil {
		m = meta.Empty
	}
	return &Data[T]{meta: meta.Seal(m), typ: typ, producer: producer}
}

// Static creates an already computed Data. The declared type is the
// dynamic type of v when T is an interface.
func Static[T any](v T, m meta.Meta) *Data[T] {
	typ := reflect.TypeFor[T]()
	if rv := reflect.ValueOf(any(v)); rv.IsValid() {
		typ = rv.Type()
	}
	if m == nil {
		m = meta.Empty
	}
	return &Data[T]{meta: meta.Seal(m), typ: typ, done: true, value: v}
}

// Failed creates a Data that always reports err.
func Failed[T any](err error, m meta.Meta) *Data[T] {
	if m == nil {
		m = meta.Empty
	}
	return &Data[T]{meta: meta.Seal(m), typ: reflect.TypeFor[T](), done: true, err: err}
}

// Meta returns the sealed metadata of d.
func (d *Data[T]) Meta() meta.Meta {
	return d.meta
}

// Type returns the declared runtime type.
func (d *Data[T]) Type() reflect.Type {
	return d.typ
}

// CanCast reports whether the declared type of d is assignable to typ.
// It never panics.
func (d *Data[T]) CanCast(typ reflect.Type) bool {
	if d == nil || typ == nil || d.typ == nil {
		return false
	}
	return d.typ.AssignableTo(typ)
}

// IsComplete reports whether the result is already available.
func (d *Data[T]) IsComplete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *Data[T]) result() (T, error, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.err, d.done
}

// Await returns the value of d, computing it on the first call.
//
// Concurrent callers share one computation. The producer is not cancelled
// when ctx is: a caller whose ctx ends gets ctx.Err() while the
// computation keeps running for the others and is memoized as usual.
func (d *Data[T]) Await(ctx context.Context) (T, error) {
	if v, err, ok := d.result(); ok {
		return v, err
	}

	ch := d.group.DoChan("", func() (any, error) {
		if _, _, ok := d.result(); ok {
			return nil, nil
		}
		v, err := d.compute(context.WithoutCancel(ctx))

		d.mu.Lock()
		d.value, d.err, d.done = v, err, true
		d.mu.Unlock()
		return nil, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-ch:
		v, err, _ := d.result()
		return v, err
	}
}

func (d *Data[T]) compute(ctx context.Context) (v T, err error) {
	obs := ObserverFrom(ctx)
	obs.ComputeStarted(d.typ)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
			zerolog.Ctx(ctx).Error().
				Interface("panic", r).
				Stringer("type", d.typ).
				Msg("data producer panicked")
		}
		obs.ComputeFinished(d.typ, time.Since(start), err)
	}()

	return d.producer(ctx)
}

// Cast returns a view of d typed as R, or false when the declared type of
// d is not assignable to R. The view shares d's computation.
func Cast[R, T any](d *Data[T]) (*Data[R], bool) {
	if !d.CanCast(reflect.TypeFor[R]()) {
		return nil, false
	}
	if out, ok := any(d).(*Data[R]); ok {
		return out, true
	}
	return &Data[R]{
		meta: d.meta,
		typ:  d.typ,
		producer: func(ctx context.Context) (R, error) {
			v, err := d.Await(ctx)
			if err != nil {
				var zero R
				return zero, err
			}
			out, _ := any(v).(R)
			return out, nil
		},
	}, true
}

// Map returns a lazy Data computing fn over the value of d.
// A nil m keeps the metadata of d.
func Map[T, R any](d *Data[T], m meta.Meta, fn func(ctx context.Context, v T) (R, error)) *Data[R] {
	if m == nil {
		m = d.meta
	}
	return New(m, func(ctx context.Context) (R, error) {
		v, err := d.Await(ctx)
		if err != nil {
			var zero R
			return zero, err
		}
		return fn(ctx, v)
	})
}
