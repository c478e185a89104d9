package netcdf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
)

const (
	maxHeaderItems = 1 << 20
	maxNameLen     = 1 << 16
	maxAttrBytes   = 1 << 28
	// maxVarBytes bounds a variable when the file size is unknown.
	maxVarBytes = 1 << 40
)

type options struct {
	name   string
	size   int64
	drop   []string
	closer io.Closer
}

type Option func(*options)

// WithName records where the bytes came from.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithSize gives the file length, needed to resolve a streaming record count.
func WithSize(n int64) Option { return func(o *options) { o.size = n } }

// WithDropVariables leaves the named variables out of the dataset.
func WithDropVariables(names ...string) Option {
	return func(o *options) { o.drop = append(o.drop, names...) }
}

// WithCloser hands ownership of c to the dataset; Close and Load close it.
func WithCloser(c io.Closer) Option { return func(o *options) { o.closer = c } }

// Open parses the header of a classic netCDF file. Variable data is read on
// demand from r.
func Open(r io.ReaderAt, opts ...Option) (*Dataset, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	dec := &decoder{r: bufio.NewReader(io.NewSectionReader(r, 0, math.MaxInt64))}

	magic := dec.bytes(4)
	if dec.err != nil || string(magic[:3]) != "CDF" {
		return nil, ErrNotNetCDF
	}
	ds := &Dataset{Name: o.name, Version: int(magic[3]), r: r, closer: o.closer}
	if ds.Version != 1 && ds.Version != 2 {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrNotNetCDF, ds.Version)
	}

	numRecs := dec.u32()
	ds.Dims = dec.dims()
	ds.Attrs = dec.attrs()
	vars, dimIDs := dec.vars(ds.Version)
	if dec.err != nil {
		return nil, fmt.Errorf("netcdf: header: %w", dec.err)
	}

	for i, v := range vars {
		for j, id := range dimIDs[i] {
			if id < 0 || int(id) >= len(ds.Dims) {
				return nil, fmt.Errorf("netcdf: header: variable %q references dimension %d", v.Name, id)
			}
			dim := ds.Dims[id]
			if dim.Unlimited {
				if j != 0 {
					return nil, fmt.Errorf("netcdf: header: variable %q has the record dimension at position %d", v.Name, j)
				}
				v.record = true
			}
			v.Dims = append(v.Dims, dim.Name)
		}
		if v.Type.Size() == 0 {
			return nil, fmt.Errorf("netcdf: header: variable %q has unknown type %d", v.Name, int32(v.Type))
		}
		v.ds = ds
	}

	ds.numRecs = int64(numRecs)
	ds.Vars = vars
	ds.refreshShapes()

	var recVars []*Variable
	for _, v := range vars {
		if v.record {
			recVars = append(recVars, v)
			ds.recSize += v.vsize
		}
	}
	if len(recVars) == 1 {
		ds.recSize = recVars[0].slab()
	}
	if numRecs == streamingRecs {
		if o.size <= 0 || len(recVars) == 0 || ds.recSize == 0 {
			return nil, fmt.Errorf("netcdf: streaming record count needs the file size")
		}
		ds.numRecs = (o.size - recVars[0].begin) / ds.recSize
	}
	for _, v := range vars {
		if err := checkExtent(v, ds.numRecs, ds.recSize, o.size); err != nil {
			return nil, err
		}
	}

	ds.Vars = ds.Vars[:0:0]
	for _, v := range vars {
		if slices.Contains(o.drop, v.Name) {
			continue
		}
		ds.Vars = append(ds.Vars, v)
	}
	ds.refreshShapes()
	return ds, nil
}

// slab is the unpadded byte size of one record of v (or all of v when it is
// not a record variable).
func (v *Variable) slab() int64 {
	n := v.Type.Size()
	for i, s := range v.Shape {
		if i == 0 && v.record {
			continue
		}
		n *= s
	}
	return n
}

// checkExtent rejects a variable whose data cannot fit: sizes that overflow,
// or data ending past the end of the file when its size is known.
func checkExtent(v *Variable, numRecs, recSize, size int64) error {
	bad := func(why string) error {
		return fmt.Errorf("%w: variable %q %s", ErrNotNetCDF, v.Name, why)
	}
	if v.begin < 0 {
		return bad("starts at a negative offset")
	}
	slab, ok := v.Type.Size(), true
	for i, s := range v.Shape {
		if i == 0 && v.record {
			continue
		}
		if slab, ok = mulSize(slab, s); !ok {
			return bad("is too large")
		}
	}

	total, end := slab, v.begin+slab
	if v.record {
		if total, ok = mulSize(slab, numRecs); !ok {
			return bad("is too large")
		}
		end = v.begin
		if numRecs > 0 {
			last, ok := mulSize(recSize, numRecs-1)
			if !ok || last > math.MaxInt64-v.begin-slab {
				return bad("is too large")
			}
			end = v.begin + last + slab
		}
	} else if slab > math.MaxInt64-v.begin {
		return bad("is too large")
	}

	switch {
	case size > 0 && end > size:
		return bad(fmt.Sprintf("ends at byte %d of a %d byte file", end, size))
	case size <= 0 && total > maxVarBytes:
		return bad(fmt.Sprintf("declares %d bytes", total))
	}
	return nil
}

// mulSize multiplies non-negative sizes, reporting overflow.
func mulSize(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

func (d *Dataset) readVar(v *Variable) (any, error) {
	r, err := d.reader()
	if err != nil {
		return nil, err
	}
	if !v.record {
		raw := make([]byte, v.Bytes())
		if err := readAt(r, raw, v.begin); err != nil {
			return nil, fmt.Errorf("netcdf: read %q: %w", v.Name, err)
		}
		return decodeValues(v.Type, raw), nil
	}
	slab := v.slab()
	raw := make([]byte, slab*d.numRecs)
	for i := int64(0); i < d.numRecs; i++ {
		if err := readAt(r, raw[i*slab:(i+1)*slab], v.begin+i*d.recSize); err != nil {
			return nil, fmt.Errorf("netcdf: read %q record %d: %w", v.Name, i, err)
		}
	}
	return decodeValues(v.Type, raw), nil
}

// readAt fills buf, accepting io.EOF when the read ends exactly at the end of
// the input.
func readAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func decodeValues(t Type, raw []byte) any {
	be := binary.BigEndian
	switch t {
	case Byte:
		out := make([]int8, len(raw))
		for i, b := range raw {
			out[i] = int8(b)
		}
		return out
	case Char:
		return string(raw)
	case Short:
		out := make([]int16, len(raw)/2)
		for i := range out {
			out[i] = int16(be.Uint16(raw[2*i:]))
		}
		return out
	case Int:
		out := make([]int32, len(raw)/4)
		for i := range out {
			out[i] = int32(be.Uint32(raw[4*i:]))
		}
		return out
	case Float:
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(be.Uint32(raw[4*i:]))
		}
		return out
	case Double:
		out := make([]float64, len(raw)/8)
		for i := range out {
			out[i] = math.Float64frombits(be.Uint64(raw[8*i:]))
		}
		return out
	default:
		return nil
	}
}

// decoder reads header fields in order; the first error sticks.
type decoder struct {
	r   *bufio.Reader
	err error
}

func (d *decoder) bytes(n int64) []byte {
	if d.err != nil {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.err = err
		return nil
	}
	return buf
}

func (d *decoder) padded(n int64) []byte {
	b := d.bytes(pad4(n))
	if b == nil {
		return nil
	}
	return b[:n]
}

func (d *decoder) u32() uint32 {
	b := d.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) i32() int32 { return int32(d.u32()) }

func (d *decoder) i64() int64 {
	b := d.bytes(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (d *decoder) count(max int64) int64 {
	n := int64(d.i32())
	if d.err == nil && (n < 0 || n > max) {
		d.err = fmt.Errorf("count %d out of range", n)
	}
	if d.err != nil {
		return 0
	}
	return n
}

func (d *decoder) name() string {
	return string(d.padded(d.count(maxNameLen)))
}

// list reads a tag/count pair. ABSENT is encoded as two zero words.
func (d *decoder) list(want int32) int64 {
	tag := d.i32()
	n := d.count(maxHeaderItems)
	if d.err != nil {
		return 0
	}
	if tag == 0 && n == 0 {
		return 0
	}
	if tag != want {
		d.err = fmt.Errorf("want list tag %d, got %d", want, tag)
		return 0
	}
	return n
}

func (d *decoder) dims() []Dim {
	n := d.list(tagDimension)
	out := make([]Dim, 0, n)
	for i := int64(0); i < n && d.err == nil; i++ {
		name := d.name()
		l := d.count(math.MaxInt32)
		out = append(out, Dim{Name: name, Len: l, Unlimited: l == 0})
	}
	return out
}

func (d *decoder) attrs() []Attr {
	n := d.list(tagAttribute)
	out := make([]Attr, 0, n)
	for i := int64(0); i < n && d.err == nil; i++ {
		name := d.name()
		t := Type(d.i32())
		if d.err == nil && t.Size() == 0 {
			d.err = fmt.Errorf("attribute %q has unknown type %d", name, int32(t))
			return out
		}
		cnt := d.count(maxAttrBytes / max(t.Size(), 1))
		raw := d.padded(cnt * t.Size())
		if d.err != nil {
			return out
		}
		out = append(out, Attr{Name: name, Value: decodeValues(t, raw)})
	}
	return out
}

func (d *decoder) vars(version int) ([]*Variable, [][]int32) {
	n := d.list(tagVariable)
	out := make([]*Variable, 0, n)
	ids := make([][]int32, 0, n)
	for i := int64(0); i < n && d.err == nil; i++ {
		v := &Variable{Name: d.name()}
		nd := d.count(maxHeaderItems)
		dimIDs := make([]int32, 0, nd)
		for j := int64(0); j < nd && d.err == nil; j++ {
			dimIDs = append(dimIDs, d.i32())
		}
		v.Attrs = d.attrs()
		v.Type = Type(d.i32())
		v.vsize = int64(d.u32())
		if version == 1 {
			v.begin = int64(d.u32())
		} else {
			v.begin = d.i64()
		}
		out = append(out, v)
		ids = append(ids, dimIDs)
	}
	return out, ids
}
