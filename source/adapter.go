// Package source defines the element producers that feed a pipeline run.
// Every source emits URLs keyed by a pattern.Index.
package source

import (
	"context"
	"fmt"
	"sort"

	"strata/internal/keyed"
	"strata/internal/pattern"
)

// Element is what a source produces: a location keyed by its index.
type Element = keyed.Indexed[pattern.Index, string]

type EmitFunc func(Element) error

type Adapter interface {
	Configure(any) error
	Run(context.Context, EmitFunc) error
	Close() error
}

// Acker is implemented by sources that want to learn when an element has
// been fully handled by every sink.
type Acker interface {
	OnAck(pattern.Index)
}

// Factory builds an Adapter for a driver name ("" picks the default).
type Factory func(driver string) (Adapter, error)

var registry = map[string]Factory{}

// Register is called from each source package's init().
func Register(kind string, f Factory) {
	registry[kind] = f
}

// NewAdapter returns a source by kind ("pattern", "kafka") and driver.
func NewAdapter(kind, driver string) (Adapter, error) {
	if f, ok := registry[kind]; ok {
		return f(driver)
	}
	return nil, fmt.Errorf("source: unsupported kind %q (have %v)", kind, Kinds())
}

func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
