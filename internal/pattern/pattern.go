// Package pattern describes collections of source files laid out along
// named dimensions, and the Index that locates each file within them.
package pattern

import (
	"errors"
	"fmt"
	"strings"

	"strata/internal/keyed"
)

// CombineDim is one dimension of a FilePattern together with the values
// substituted into the URL template.
type CombineDim struct {
	Name      string
	Operation CombineOp
	Keys      []string
}

// FilePattern expands a URL template such as
// "https://host/data/{variable}/{time}.nc" over its dimensions.
type FilePattern struct {
	Format   string
	Dims     []CombineDim
	FileType FileType
}

func (p FilePattern) Validate() error {
	if strings.TrimSpace(p.Format) == "" {
		return errors.New("pattern: format is required")
	}
	if len(p.Dims) == 0 {
		return errors.New("pattern: at least one dimension is required")
	}
	seen := make(map[string]bool, len(p.Dims))
	for _, d := range p.Dims {
		if d.Name == "" {
			return errors.New("pattern: dimension without a name")
		}
		if seen[d.Name] {
			return fmt.Errorf("pattern: duplicate dimension %q", d.Name)
		}
		seen[d.Name] = true
		if len(d.Keys) == 0 {
			return fmt.Errorf("pattern: dimension %q has no keys", d.Name)
		}
		if !strings.Contains(p.Format, "{"+d.Name+"}") {
			return fmt.Errorf("pattern: format has no {%s} placeholder", d.Name)
		}
	}
	return nil
}

// Len is the number of files the pattern describes.
func (p FilePattern) Len() int {
	if len(p.Dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range p.Dims {
		n *= len(d.Keys)
	}
	return n
}

// Items lists every (index, url) pair, last dimension varying fastest.
func (p FilePattern) Items() ([]keyed.Indexed[Index, string], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := make([]keyed.Indexed[Index, string], 0, p.Len())
	pos := make([]int, len(p.Dims))
	for {
		ix := make(Index, len(p.Dims))
		pairs := make([]string, 0, 2*len(p.Dims))
		for i, d := range p.Dims {
			ix[i] = Position{
				Dimension: Dimension{Name: d.Name, Operation: d.Operation},
				Value:     int64(pos[i]),
			}
			pairs = append(pairs, "{"+d.Name+"}", d.Keys[pos[i]])
		}
		out = append(out, keyed.New(ix, strings.NewReplacer(pairs...).Replace(p.Format)))

		i := len(pos) - 1
		for ; i >= 0; i-- {
			pos[i]++
			if pos[i] < len(p.Dims[i].Keys) {
				break
			}
			pos[i] = 0
		}
		if i < 0 {
			return out, nil
		}
	}
}
