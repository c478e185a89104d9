// Package keyed adapts per-value functions so they can run over keyed
// elements. The key travels through untouched: functions built here are
// generic over any key type and never compare, hash or copy into it.
package keyed

import (
	"context"
	"errors"
)

// ErrNilFunc is returned by AddKeys when there is nothing to wrap.
var ErrNilFunc = errors.New("keyed: nil function")

// Indexed pairs an opaque key with a value.
type Indexed[K, V any] struct {
	Key   K
	Value V
}

// New builds an Indexed element.
func New[K, V any](key K, value V) Indexed[K, V] {
	return Indexed[K, V]{Key: key, Value: value}
}

// ElementKey exposes the key to code that does not know K, such as error
// reporting in the pipeline engine.
func (i Indexed[K, V]) ElementKey() any { return i.Key }

// ElementValue exposes the value the same way, so the engine can release a
// resource held by an element it drops.
func (i Indexed[K, V]) ElementValue() any { return i.Value }

// Func is the keyed form of a function of one value and a configuration
// record.
type Func[K, V, R, C any] func(ctx context.Context, in Indexed[K, V], cfg C) (Indexed[K, R], error)

// AddKeys lifts fn to operate on (key, value) pairs. The returned function
// calls fn on the value alone and re-attaches the original key to the result.
// Errors from fn are returned as-is, with a zero result.
func AddKeys[K, V, R, C any](fn func(context.Context, V, C) (R, error)) (Func[K, V, R, C], error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	return func(ctx context.Context, in Indexed[K, V], cfg C) (Indexed[K, R], error) {
		out, err := fn(ctx, in.Value, cfg)
		if err != nil {
			return Indexed[K, R]{}, err
		}
		return Indexed[K, R]{Key: in.Key, Value: out}, nil
	}, nil
}

// MustAddKeys is AddKeys for package-level wiring; it panics on a nil fn.
func MustAddKeys[K, V, R, C any](fn func(context.Context, V, C) (R, error)) Func[K, V, R, C] {
	f, err := AddKeys[K](fn)
	if err != nil {
		panic(err)
	}
	return f
}

// Bind fixes cfg so every call of the result sees the same configuration.
func Bind[K, V, R, C any](fn Func[K, V, R, C], cfg C) func(context.Context, Indexed[K, V]) (Indexed[K, R], error) {
	return func(ctx context.Context, in Indexed[K, V]) (Indexed[K, R], error) {
		return fn(ctx, in, cfg)
	}
}

// Lift turns a pure function into the shape AddKeys expects. It takes no
// configuration and never fails.
func Lift[V, R any](f func(V) R) func(context.Context, V, struct{}) (R, error) {
	if f == nil {
		return nil
	}
	return func(_ context.Context, v V, _ struct{}) (R, error) {
		return f(v), nil
	}
}
