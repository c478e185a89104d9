package netcdf

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Dim is a named dimension. The unlimited (record) dimension has Unlimited
// set and its Len tracks the number of records.
type Dim struct {
	Name      string
	Len       int64
	Unlimited bool
}

// Attr is a named attribute. Value holds []int8, string, []int16, []int32,
// []float32 or []float64.
type Attr struct {
	Name  string
	Value any
}

func (a Attr) Type() Type {
	t, _, _ := typeOf(a.Value)
	return t
}

type Variable struct {
	Name  string
	Dims  []string
	Shape []int64
	Type  Type
	Attrs []Attr

	ds     *Dataset
	record bool
	begin  int64
	vsize  int64

	mu   sync.Mutex
	data any
}

// Len is the total number of values held by the variable.
func (v *Variable) Len() int64 {
	n := int64(1)
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// Bytes is the unpadded size of the variable's data.
func (v *Variable) Bytes() int64 { return v.Len() * v.Type.Size() }

func (v *Variable) IsRecord() bool { return v.record }

func (v *Variable) Attr(name string) (Attr, bool) { return findAttr(v.Attrs, name) }

// Loaded reports whether the variable's values are held in memory.
func (v *Variable) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.data != nil
}

// Read returns the variable's values as a typed slice (string for char).
// Unloaded variables are read from the dataset's reader on every call.
func (v *Variable) Read() (any, error) {
	v.mu.Lock()
	data := v.data
	v.mu.Unlock()
	if data != nil {
		return data, nil
	}
	if v.ds == nil {
		return nil, fmt.Errorf("netcdf: variable %q has no data", v.Name)
	}
	return v.ds.readVar(v)
}

// Dataset is an open netCDF file or one being assembled for Write.
type Dataset struct {
	Name    string
	Version int
	Dims    []Dim
	Attrs   []Attr
	Vars    []*Variable

	mu      sync.Mutex
	r       io.ReaderAt
	closer  io.Closer
	numRecs int64
	recSize int64
	closed  bool
}

// NewDataset starts an empty CDF-1 dataset.
func NewDataset(name string) *Dataset {
	return &Dataset{Name: name, Version: 1}
}

// NumRecs is the current length of the record dimension.
func (d *Dataset) NumRecs() int64 { return d.numRecs }

func (d *Dataset) Dim(name string) (Dim, bool) {
	for _, dim := range d.Dims {
		if dim.Name == name {
			return dim, true
		}
	}
	return Dim{}, false
}

func (d *Dataset) Var(name string) (*Variable, bool) {
	for _, v := range d.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

func (d *Dataset) Attr(name string) (Attr, bool) { return findAttr(d.Attrs, name) }

// AddDim declares a dimension. A zero length declares the record dimension;
// there can be only one.
func (d *Dataset) AddDim(name string, length int64) error {
	if name == "" {
		return errors.New("netcdf: empty dimension name")
	}
	if length < 0 {
		return fmt.Errorf("netcdf: negative length for dimension %q", name)
	}
	if _, ok := d.Dim(name); ok {
		return fmt.Errorf("netcdf: dimension %q already defined", name)
	}
	if length == 0 {
		for _, dim := range d.Dims {
			if dim.Unlimited {
				return fmt.Errorf("netcdf: record dimension already defined (%q)", dim.Name)
			}
		}
	}
	d.Dims = append(d.Dims, Dim{Name: name, Len: length, Unlimited: length == 0})
	return nil
}

// SetAttr adds or replaces a global attribute.
func (d *Dataset) SetAttr(name string, value any) error {
	if _, _, err := typeOf(value); err != nil {
		return err
	}
	d.Attrs = setAttr(d.Attrs, Attr{Name: name, Value: value})
	return nil
}

// AddVar defines a variable over existing dimensions with its values. Only
// the first dimension may be the record dimension; the record count grows to
// fit the data.
func (d *Dataset) AddVar(name string, dims []string, data any, attrs ...Attr) (*Variable, error) {
	if _, ok := d.Var(name); ok {
		return nil, fmt.Errorf("netcdf: variable %q already defined", name)
	}
	t, n, err := typeOf(data)
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if _, _, err := typeOf(a.Value); err != nil {
			return nil, fmt.Errorf("netcdf: attribute %s.%s: %w", name, a.Name, err)
		}
	}
	v := &Variable{Name: name, Dims: dims, Type: t, Attrs: attrs, data: data}
	slab := int64(1)
	for i, dn := range dims {
		dim, ok := d.Dim(dn)
		if !ok {
			return nil, fmt.Errorf("netcdf: variable %q: unknown dimension %q", name, dn)
		}
		if dim.Unlimited {
			if i != 0 {
				return nil, fmt.Errorf("netcdf: variable %q: record dimension must come first", name)
			}
			v.record = true
			continue
		}
		slab *= dim.Len
	}
	if v.record {
		if slab == 0 || n%slab != 0 {
			return nil, fmt.Errorf("netcdf: variable %q: %d values do not fill whole records of %d", name, n, slab)
		}
		recs := n / slab
		if recs > d.numRecs {
			d.numRecs = recs
		}
	} else if n != slab {
		return nil, fmt.Errorf("netcdf: variable %q: want %d values, got %d", name, slab, n)
	}
	d.Vars = append(d.Vars, v)
	d.refreshShapes()
	return v, nil
}

// refreshShapes keeps record dimension lengths in step with numRecs.
func (d *Dataset) refreshShapes() {
	for i := range d.Dims {
		if d.Dims[i].Unlimited {
			d.Dims[i].Len = d.numRecs
		}
	}
	for _, v := range d.Vars {
		v.Shape = v.Shape[:0]
		for _, dn := range v.Dims {
			dim, _ := d.Dim(dn)
			v.Shape = append(v.Shape, dim.Len)
		}
	}
}

// Load reads every variable into memory and releases the underlying reader.
func (d *Dataset) Load() error {
	for _, v := range d.Vars {
		if v.Loaded() {
			continue
		}
		data, err := d.readVar(v)
		if err != nil {
			return fmt.Errorf("netcdf: load %q: %w", v.Name, err)
		}
		v.mu.Lock()
		v.data = data
		v.mu.Unlock()
	}
	return d.release()
}

// Loaded reports whether every variable is held in memory.
func (d *Dataset) Loaded() bool {
	for _, v := range d.Vars {
		if !v.Loaded() {
			return false
		}
	}
	return true
}

// Own hands c to the dataset, like WithCloser after the fact.
func (d *Dataset) Own(c io.Closer) {
	d.mu.Lock()
	d.closer = c
	d.mu.Unlock()
}

// Close releases the underlying reader. Loaded values stay readable.
func (d *Dataset) Close() error {
	err := d.release()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return err
}

func (d *Dataset) release() error {
	d.mu.Lock()
	c := d.closer
	d.r, d.closer = nil, nil
	d.mu.Unlock()
	if c != nil {
		return c.Close()
	}
	return nil
}

func (d *Dataset) reader() (io.ReaderAt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.r == nil {
		return nil, ErrClosed
	}
	return d.r, nil
}

func findAttr(attrs []Attr, name string) (Attr, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

func setAttr(attrs []Attr, a Attr) []Attr {
	for i := range attrs {
		if attrs[i].Name == a.Name {
			attrs[i] = a
			return attrs
		}
	}
	return append(attrs, a)
}
