package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"strata/internal/logging"
	"strata/internal/telemetry"
)

type stageConfig struct {
	workers  int
	attempts int
	backoff  time.Duration
	timeout  time.Duration
}

type StageOption func(*stageConfig)

// WithWorkers runs n copies of the stage function. Output order is not
// preserved when n > 1.
func WithWorkers(n int) StageOption {
	return func(c *stageConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithRetry re-runs a failed call up to attempts more times, sleeping
// backoff, 2*backoff, ... in between.
func WithRetry(attempts int, backoff time.Duration) StageOption {
	return func(c *stageConfig) {
		if attempts >= 0 {
			c.attempts, c.backoff = attempts, backoff
		}
	}
}

// WithTimeout bounds every single call.
func WithTimeout(d time.Duration) StageOption {
	return func(c *stageConfig) { c.timeout = d }
}

// StageError reports which stage failed on which element.
type StageError struct {
	Stage   string
	Element string
	Err     error
}

func (e *StageError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Stage, e.Element, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Map applies fn to every element of c. An element whose call finally fails
// stays owned by the stage and is released (closed, if it holds an
// io.Closer). On success ownership moves to fn's result.
func Map[In, Out any](c *Collection[In], label string, fn func(context.Context, In) (Out, error), opts ...StageOption) *Collection[Out] {
	cfg := stageConfig{workers: 1}
	for _, o := range c.p.defaults {
		o(&cfg)
	}
	for _, o := range opts {
		o(&cfg)
	}

	p := c.p
	out := make(chan Out, p.buffer)
	var (
		wg    sync.WaitGroup
		abort sync.Once
	)
	stop := func(err error) error {
		abort.Do(func() { discard(p, c.ch) })
		return err
	}
	for i := 0; i < cfg.workers; i++ {
		wg.Add(1)
		p.goStage(func() error {
			defer wg.Done()
			for {
				select {
				case <-p.ctx.Done():
					return stop(p.ctx.Err())
				case in, ok := <-c.ch:
					if !ok {
						return nil
					}
					var res Out
					err := observe(label, in, func() (err error) {
						res, err = call(p.ctx, cfg, label, fn, in)
						return err
					})
					if err != nil {
						release(in)
						return stop(err)
					}
					if err := send(p.ctx, out, res); err != nil {
						release(res)
						return stop(err)
					}
				}
			}
		})
	}
	p.goStage(func() error {
		wg.Wait()
		close(out)
		return nil
	})
	return &Collection[Out]{p: p, label: label, ch: out}
}

func call[In, Out any](ctx context.Context, cfg stageConfig, label string, fn func(context.Context, In) (Out, error), in In) (Out, error) {
	var (
		res Out
		err error
	)
	for attempt := 0; ; attempt++ {
		res, err = once(ctx, cfg.timeout, fn, in)
		if err == nil || attempt >= cfg.attempts || ctx.Err() != nil {
			return res, err
		}
		wait := cfg.backoff * time.Duration(1<<attempt)
		logging.L().Warn("stage call failed; retrying",
			"stage", label, "element", describe(in), "attempt", attempt+1, "backoff", wait, "err", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return res, err
		}
	}
}

func once[In, Out any](ctx context.Context, timeout time.Duration, fn func(context.Context, In) (Out, error), in In) (Out, error) {
	if timeout <= 0 {
		return fn(ctx, in)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx, in)
}

// observe records metrics for one call and wraps its failure.
func observe[T any](label string, v T, fn func() error) error {
	started := time.Now()
	err := fn()
	telemetry.ObserveStage(label, started, err)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &StageError{Stage: label, Element: describe(v), Err: err}
}

type elementKeyer interface{ ElementKey() any }

// describe names an element for errors and logs without formatting its
// value, which may be large.
func describe(v any) string {
	if k, ok := v.(elementKeyer); ok {
		return fmt.Sprint(k.ElementKey())
	}
	return ""
}

type elementValuer interface{ ElementValue() any }

// release closes v, or the value it carries, when it holds a resource.
func release(v any) {
	if ev, ok := v.(elementValuer); ok {
		v = ev.ElementValue()
	}
	c, ok := v.(io.Closer)
	if !ok {
		return
	}
	if rv := reflect.ValueOf(c); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return
	}
	if err := c.Close(); err != nil {
		logging.L().Debug("releasing dropped element", "err", err)
	}
}
