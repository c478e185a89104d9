package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"strata/internal/keyed"
	"strata/internal/logging"
	"strata/internal/pattern"
	"strata/internal/storage"
	"strata/internal/stream"
	"strata/internal/transforms"
	"strata/sink"
	"strata/source"
)

const labelSinks = "Write sinks"

type fileElement = keyed.Indexed[pattern.Index, storage.File]

type Runner struct {
	source source.Adapter
	sinks  []sink.Adapter
	cache  storage.Cache

	openURL   transforms.OpenURL[pattern.Index]
	openArray transforms.OpenWithArray[pattern.Index, storage.File]
	opts      []stream.Option

	mu       sync.Mutex
	subs     []func(pattern.Index)
	ackAware int
	pending  map[string]int // index -> sink acks still outstanding

	done chan struct{}
	err  error
}

func NewRunner() *Runner { return &Runner{pending: make(map[string]int)} }

func (r *Runner) AddSink(s sink.Adapter) {
	if _, ok := s.(sink.AckAware); ok {
		r.ackAware++
	}
	r.sinks = append(r.sinks, s)
}

func (r *Runner) SetSource(s source.Adapter) { r.source = s }

// SetCache routes every URL through c. The runner closes it on Close.
func (r *Runner) SetCache(c storage.Cache) {
	r.cache = c
	r.openURL.Cache = c
}

func (r *Runner) SetOpenURL(t transforms.OpenURL[pattern.Index]) {
	if t.Cache == nil {
		t.Cache = r.cache
	}
	r.openURL = t
}

func (r *Runner) SetOpenWithArray(t transforms.OpenWithArray[pattern.Index, storage.File]) {
	r.openArray = t
}

func (r *Runner) SetStreamOptions(opts ...stream.Option) { r.opts = opts }

// SubscribeAck registers fn to be told when an element has been handled by
// every sink.
func (r *Runner) SubscribeAck(fn func(pattern.Index)) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

// Ack is bound to ack-aware sinks. The source hears about an element once
// all of them have acknowledged it.
func (r *Runner) Ack(ix pattern.Index) {
	key := ix.String()
	r.mu.Lock()
	n, ok := r.pending[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	if n > 1 {
		r.pending[key] = n - 1
		r.mu.Unlock()
		return
	}
	delete(r.pending, key)
	r.mu.Unlock()
	r.notify(ix)
}

func (r *Runner) notify(ix pattern.Index) {
	r.mu.Lock()
	handlers := append([]func(pattern.Index){}, r.subs...)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(ix)
	}
}

/*──────── dataset routing ───────*/
func (r *Runner) pushDataset(ds sink.Dataset) error {
	defer closeDataset(ds)

	if r.ackAware > 0 {
		r.mu.Lock()
		r.pending[ds.Key.String()] += r.ackAware
		r.mu.Unlock()
	}
	for _, s := range r.sinks {
		if err := s.Push(ds); err != nil {
			return err
		}
	}
	if r.ackAware == 0 {
		r.notify(ds.Key)
	}
	return nil
}

func closeDataset(ds sink.Dataset) {
	if ds.Value == nil {
		return
	}
	if err := ds.Value.Close(); err != nil {
		logging.L().Warn("closing dataset", "index", ds.Key.String(), "err", err)
	}
}

// Run executes the pipeline until the source is exhausted, ctx is cancelled
// or a stage fails.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return errors.New("runner: no source configured")
	}
	p := stream.New(ctx, r.opts...)
	log := logging.L().With("run", p.ID())
	log.Info("pipeline starting", "sinks", len(r.sinks), "cache", r.cache != nil)

	urls := stream.Source(p, "Read source", func(ctx context.Context, emit func(source.Element) error) error {
		return r.source.Run(ctx, emit)
	})
	files, err := stream.Apply[source.Element, fileElement](urls, r.openURL)
	if err != nil {
		_ = p.Wait()
		return err
	}
	datasets, err := stream.Apply[fileElement, sink.Dataset](files, r.openArray)
	if err != nil {
		_ = p.Wait()
		return err
	}

	var n atomic.Int64
	stream.Sink(datasets, labelSinks, func(_ context.Context, ds sink.Dataset) error {
		n.Add(1)
		return r.pushDataset(ds)
	})

	err = p.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("pipeline failed", "elements", n.Load(), "err", err)
		return err
	}
	log.Info("pipeline finished", "elements", n.Load())
	return err
}

// Start runs the pipeline in the background; Wait returns its result.
func (r *Runner) Start(ctx context.Context) error {
	if r.source == nil {
		return errors.New("runner: no source configured")
	}
	if r.done != nil {
		return fmt.Errorf("runner: already started")
	}
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		r.err = r.Run(ctx)
	}()
	return nil
}

func (r *Runner) Wait() error {
	if r.done == nil {
		return errors.New("runner: not started")
	}
	<-r.done
	return r.err
}

// Close releases the source, every sink and the cache.
func (r *Runner) Close() error {
	var errs []error
	if r.source != nil {
		errs = append(errs, r.source.Close())
	}
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	if r.cache != nil {
		errs = append(errs, r.cache.Close())
	}
	return errors.Join(errs...)
}
