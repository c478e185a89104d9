// strata/sink/stdout/driver.go
package stdout

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"strata/internal/pattern"
	"strata/sink"
)

/* ────────── public config ────────── */
type Config struct {
	DelayMS      int  `yaml:"delay_ms"`       // artificial per-element delay
	PrintCounter bool `yaml:"print_counter"`  // prepend seq#
	PrintAttrs   bool `yaml:"print_attrs"`    // append global attributes
	BatchSize    int  `yaml:"ack_batch_size"` // 0 = ack every element
	FlushMS      int  `yaml:"ack_flush_ms"`   // 0 = disabled

	Out io.Writer `yaml:"-"` // defaults to os.Stdout
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config
	ack sink.EmitFn
	seq uint64

	mu      sync.Mutex // guards out+seq+pending+timer
	pending []pattern.Index
	timer   *time.Timer // nil → no timer armed
}

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	d.cfg = c
	return nil
}

func (d *driver) Push(ds sink.Dataset) error {
	if d.cfg.DelayMS > 0 {
		time.Sleep(time.Duration(d.cfg.DelayMS) * time.Millisecond)
	}
	line := d.format(ds)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.cfg.PrintCounter {
		line = fmt.Sprintf("[sink %06d] %s", d.seq, line)
	}
	if _, err := fmt.Fprintln(d.cfg.Out, line); err != nil {
		return err
	}

	if d.ack == nil {
		return nil
	}
	d.pending = append(d.pending, ds.Key)

	/* 1. flush on batch size */
	if d.cfg.BatchSize <= 1 || len(d.pending) >= d.cfg.BatchSize {
		d.flushLocked()
		return nil
	}

	/* 2. (re)-arm the one-shot timer if needed */
	if d.cfg.FlushMS > 0 && d.timer == nil {
		d.timer = time.AfterFunc(
			time.Duration(d.cfg.FlushMS)*time.Millisecond,
			d.timerFlush,
		)
	}
	return nil
}

func (d *driver) Close() error {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
	return nil
}

/* ────────── sink.AckAware ────────── */
func (d *driver) BindAck(fn sink.EmitFn) { d.ack = fn }

/* ────────── internals ────────── */

func (d *driver) format(ds sink.Dataset) string {
	if ds.Value == nil {
		return ds.Key.String() + " <nil>"
	}
	s := ds.Value.Summary()

	dims := make([]string, 0, len(s.Dims))
	for name, n := range s.Dims {
		dims = append(dims, fmt.Sprintf("%s:%d", name, n))
	}
	sort.Strings(dims)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s CDF-%d dims=%s vars=%d size=%s",
		ds.Key, s.Name, s.Version, strings.Join(dims, ","), len(s.Vars), humanize.Bytes(uint64(s.Bytes)))
	if s.Loaded {
		b.WriteString(" loaded")
	}
	if d.cfg.PrintAttrs && len(s.Attrs) > 0 {
		keys := make([]string, 0, len(s.Attrs))
		for k := range s.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, s.Attrs[k])
		}
	}
	return b.String()
}

// called by the background timer goroutine
func (d *driver) timerFlush() {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
}

// must be called with d.mu *held*
func (d *driver) flushLocked() {
	if len(d.pending) == 0 || d.ack == nil {
		d.stopTimerLocked()
		return
	}
	for _, ix := range d.pending {
		d.ack(ix)
	}
	d.pending = d.pending[:0]
	d.stopTimerLocked() // re-arm on next Push if needed
}

func (d *driver) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
