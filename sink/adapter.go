package sink

import (
	"fmt"

	"strata/internal/keyed"
	"strata/internal/netcdf"
	"strata/internal/pattern"
)

// Dataset is the element every sink consumes.
type Dataset = keyed.Indexed[pattern.Index, *netcdf.Dataset]

// EmitFn is what a sink calls to notify the pipeline that an element
// (or a batch of elements) has been durably processed.
type EmitFn func(pattern.Index)

// Adapter is the common behaviour every sink exposes. Push must be done
// with the dataset when it returns; the runner closes it afterwards.
type Adapter interface {
	Configure(any) error // driver-specific config ⇒ struct
	Push(Dataset) error  // consume one element
	Close() error        // idempotent
}

// AckAware is *optional*; sinks that acknowledge asynchronously simply
// implement it. The compiler wires the callback if present. Sinks that do
// not implement it are done with an element once Push returns.
type AckAware interface {
	BindAck(EmitFn)
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
