// Package stream runs typed element streams through per-element stages.
//
// A Pipeline owns a set of goroutines connected by bounded channels. Stages
// are added with Source, Map, Apply and Sink while the pipeline is already
// running; Wait blocks until every stage has finished or the first one has
// failed. A failure cancels the whole run.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"strata/internal/logging"
)

const defaultBuffer = 16

type Pipeline struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	g        *errgroup.Group
	buffer   int
	defaults []StageOption
}

type Option func(*Pipeline)

// WithBuffer sets the channel capacity between stages.
func WithBuffer(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// WithStageDefaults applies opts to every Map stage before its own options.
func WithStageDefaults(opts ...StageOption) Option {
	return func(p *Pipeline) { p.defaults = append(p.defaults, opts...) }
}

func New(ctx context.Context, opts ...Option) *Pipeline {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	p := &Pipeline{
		id:     uuid.NewString(),
		ctx:    gctx,
		cancel: cancel,
		g:      g,
		buffer: defaultBuffer,
	}
	for _, o := range opts {
		o(p)
	}
	logging.L().Debug("pipeline created", "run", p.id)
	return p
}

// ID identifies the run in logs.
func (p *Pipeline) ID() string { return p.id }

// Context is cancelled once any stage fails or the parent context ends.
func (p *Pipeline) Context() context.Context { return p.ctx }

// Fail aborts the run with err; Wait returns it unless another stage failed
// first.
func (p *Pipeline) Fail(err error) {
	p.g.Go(func() error { return err })
}

// Wait blocks until every stage has returned. It returns the first error.
func (p *Pipeline) Wait() error {
	err := p.g.Wait()
	p.cancel()
	return err
}

func (p *Pipeline) goStage(fn func() error) { p.g.Go(fn) }

// discard releases whatever is left in ch once the run is cancelled, for
// consumers that stop early.
func discard[T any](p *Pipeline, ch <-chan T) {
	p.goStage(func() error {
		<-p.ctx.Done()
		for v := range ch {
			release(v)
		}
		return nil
	})
}

// Collection is a stream of elements flowing out of one stage. It must be
// consumed by exactly one downstream stage.
type Collection[T any] struct {
	p     *Pipeline
	label string
	ch    <-chan T
}

func (c *Collection[T]) Pipeline() *Pipeline { return c.p }

// Label names the stage that produces the collection.
func (c *Collection[T]) Label() string { return c.label }

// send delivers v unless the run is cancelled first.
func send[T any](ctx context.Context, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Source starts a producer. fn must stop and return when emit fails.
func Source[T any](p *Pipeline, label string, fn func(ctx context.Context, emit func(T) error) error) *Collection[T] {
	out := make(chan T, p.buffer)
	p.goStage(func() error {
		defer close(out)
		emit := func(v T) error {
			if err := send(p.ctx, out, v); err != nil {
				release(v)
				return err
			}
			return nil
		}
		if err := fn(p.ctx, emit); err != nil {
			if p.ctx.Err() != nil {
				return p.ctx.Err()
			}
			return fmt.Errorf("%s: %w", label, err)
		}
		return nil
	})
	return &Collection[T]{p: p, label: label, ch: out}
}

// Of emits items in order. Items a cancelled run never emits are released.
func Of[T any](p *Pipeline, label string, items ...T) *Collection[T] {
	return Source(p, label, func(_ context.Context, emit func(T) error) error {
		for i, it := range items {
			if err := emit(it); err != nil {
				for _, rest := range items[i+1:] {
					release(rest)
				}
				return err
			}
		}
		return nil
	})
}

// Transform is a composite stage: Expand wires whatever primitive stages it
// needs and returns the resulting collection. Expand errors are assembly
// errors.
type Transform[In, Out any] interface {
	Label() string
	Expand(*Collection[In]) (*Collection[Out], error)
}

// Apply expands t onto c. On error the run is aborted and the error is also
// returned by Wait.
func Apply[In, Out any](c *Collection[In], t Transform[In, Out]) (*Collection[Out], error) {
	logging.L().Info("applying transform", "run", c.p.id, "label", t.Label(), "input", c.label)
	out, err := t.Expand(c)
	if err != nil {
		err = fmt.Errorf("%s: %w", t.Label(), err)
		c.p.Fail(err)
		discard(c.p, c.ch)
		return nil, err
	}
	return out, nil
}

// Sink consumes c one element at a time, in arrival order. fn owns every
// element it is given; elements left behind by a failed or cancelled run
// are released.
func Sink[T any](c *Collection[T], label string, fn func(context.Context, T) error) {
	ctx := c.p.ctx
	c.p.goStage(func() error {
		for {
			select {
			case <-ctx.Done():
				discard(c.p, c.ch)
				return ctx.Err()
			case v, ok := <-c.ch:
				if !ok {
					return nil
				}
				if err := observe(label, v, func() error { return fn(ctx, v) }); err != nil {
					discard(c.p, c.ch)
					return err
				}
			}
		}
	})
}

// Collected accumulates the elements reaching a Collect stage.
type Collected[T any] struct {
	mu    sync.Mutex
	items []T
}

// Items returns a copy of what has been collected so far. After a nil Wait
// it holds every element.
func (c *Collected[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

func Collect[T any](c *Collection[T]) *Collected[T] {
	res := &Collected[T]{}
	Sink(c, "Collect", func(_ context.Context, v T) error {
		res.mu.Lock()
		res.items = append(res.items, v)
		res.mu.Unlock()
		return nil
	})
	return res
}
