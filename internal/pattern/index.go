package pattern

import (
	"fmt"
	"strconv"
	"strings"
)

// CombineOp says how elements along a dimension are put back together
// downstream.
type CombineOp int

const (
	Concat CombineOp = iota
	Merge
)

func (op CombineOp) String() string {
	switch op {
	case Merge:
		return "merge"
	default:
		return "concat"
	}
}

// ParseCombineOp accepts "concat" (default when empty) and "merge".
func ParseCombineOp(s string) (CombineOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "concat":
		return Concat, nil
	case "merge":
		return Merge, nil
	default:
		return Concat, fmt.Errorf("pattern: unknown combine op %q", s)
	}
}

// Dimension names one axis of a file pattern.
type Dimension struct {
	Name      string
	Operation CombineOp
}

// Position is an element's place along one dimension.
type Position struct {
	Dimension Dimension
	Value     int64
}

// Index locates an element within a pattern. Positions keep the pattern's
// dimension order.
type Index []Position

// Find returns the position along the named dimension.
func (ix Index) Find(name string) (Position, bool) {
	for _, p := range ix {
		if p.Dimension.Name == name {
			return p, true
		}
	}
	return Position{}, false
}

// String renders the index as "dim=value" pairs, e.g. "time=3,variable=0".
func (ix Index) String() string {
	if len(ix) == 0 {
		return "-"
	}
	var b strings.Builder
	for i, p := range ix {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.Dimension.Name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatInt(p.Value, 10))
	}
	return b.String()
}
