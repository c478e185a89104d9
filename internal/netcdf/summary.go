package netcdf

// Summary is a JSON-friendly description of a dataset's structure.
type Summary struct {
	Name    string           `json:"name"`
	Version int              `json:"version"`
	Dims    map[string]int64 `json:"dims"`
	Vars    []VarSummary     `json:"vars"`
	Attrs   map[string]any   `json:"attrs,omitempty"`
	Bytes   int64            `json:"bytes"`
	Loaded  bool             `json:"loaded"`
}

type VarSummary struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Dims  []string `json:"dims"`
	Shape []int64  `json:"shape"`
	Bytes int64    `json:"bytes"`
}

// Summary describes the dataset. Text attributes are included verbatim,
// single-valued numeric ones as scalars.
func (d *Dataset) Summary() Summary {
	s := Summary{
		Name:    d.Name,
		Version: d.Version,
		Dims:    make(map[string]int64, len(d.Dims)),
		Loaded:  d.Loaded(),
	}
	for _, dim := range d.Dims {
		s.Dims[dim.Name] = dim.Len
	}
	for _, v := range d.Vars {
		s.Vars = append(s.Vars, VarSummary{
			Name:  v.Name,
			Type:  v.Type.String(),
			Dims:  append([]string(nil), v.Dims...),
			Shape: append([]int64(nil), v.Shape...),
			Bytes: v.Bytes(),
		})
		s.Bytes += v.Bytes()
	}
	for _, a := range d.Attrs {
		if val, ok := scalar(a.Value); ok {
			if s.Attrs == nil {
				s.Attrs = make(map[string]any)
			}
			s.Attrs[a.Name] = val
		}
	}
	return s
}

func scalar(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []int8:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []float32:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []float64:
		if len(x) == 1 {
			return x[0], true
		}
	}
	return nil, false
}
