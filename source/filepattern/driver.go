// Package filepattern is the "pattern" source: it expands a URL template
// over its dimensions and emits every (index, url) pair in index order.
package filepattern

import (
	"context"
	"fmt"

	"strata/internal/logging"
	"strata/internal/pattern"
	"strata/source"
)

func init() {
	source.Register("pattern", func(string) (source.Adapter, error) { return &Driver{}, nil })
}

type Driver struct {
	pattern pattern.FilePattern
	limit   int
}

func (d *Driver) Configure(cfg any) error {
	var c Config
	switch v := cfg.(type) {
	case Config:
		c = v
	case *Config:
		c = *v
	default:
		return fmt.Errorf("filepattern: unexpected config %T", cfg)
	}
	p, err := c.Pattern()
	if err != nil {
		return err
	}
	d.pattern, d.limit = p, c.Limit
	return nil
}

// Pattern returns the configured pattern.
func (d *Driver) Pattern() pattern.FilePattern { return d.pattern }

func (d *Driver) Run(ctx context.Context, emit source.EmitFunc) error {
	items, err := d.pattern.Items()
	if err != nil {
		return err
	}
	if d.limit > 0 && d.limit < len(items) {
		items = items[:d.limit]
	}
	logging.L().Info("pattern source: emitting", "elements", len(items), "format", d.pattern.Format)
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(it); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) Close() error { return nil }
