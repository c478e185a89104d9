package netcdf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Write encodes d as a classic netCDF file. Lazy variables are read through
// the dataset's reader, so an open dataset can be copied before Close.
func Write(w io.Writer, d *Dataset) error {
	if d.Version != 1 && d.Version != 2 {
		return fmt.Errorf("netcdf: cannot write format version %d", d.Version)
	}
	dimIDs := make(map[string]int32, len(d.Dims))
	for i, dim := range d.Dims {
		dimIDs[dim.Name] = int32(i)
	}

	var recVars, fixed []*Variable
	for _, v := range d.Vars {
		if v.record {
			recVars = append(recVars, v)
		} else {
			fixed = append(fixed, v)
		}
	}

	// The header size does not depend on the begin offsets, so encode once to
	// measure, lay out the data, then encode for real.
	vsize := func(v *Variable) int64 { return pad4(v.slab()) }
	draft, err := encodeHeader(d, dimIDs, vsize, func(*Variable) int64 { return 0 })
	if err != nil {
		return err
	}
	begins := make(map[*Variable]int64, len(d.Vars))
	off := int64(len(draft))
	for _, v := range fixed {
		begins[v] = off
		off += vsize(v)
	}
	for _, v := range recVars {
		begins[v] = off
		off += vsize(v)
	}
	if d.Version == 1 && off > math.MaxInt32 {
		return fmt.Errorf("netcdf: %d bytes need the 64-bit offset format (Version 2)", off)
	}
	header, err := encodeHeader(d, dimIDs, vsize, func(v *Variable) int64 { return begins[v] })
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(header); err != nil {
		return err
	}
	for _, v := range fixed {
		raw, err := varBytes(v)
		if err != nil {
			return err
		}
		if err := writePadded(bw, raw, vsize(v)); err != nil {
			return err
		}
	}
	if len(recVars) > 0 {
		raws := make([][]byte, len(recVars))
		for i, v := range recVars {
			if raws[i], err = varBytes(v); err != nil {
				return err
			}
		}
		for r := int64(0); r < d.numRecs; r++ {
			for i, v := range recVars {
				slab := v.slab()
				rec := make([]byte, slab)
				if lo := r * slab; lo < int64(len(raws[i])) {
					copy(rec, raws[i][lo:])
				}
				size := vsize(v)
				if len(recVars) == 1 {
					size = slab
				}
				if err := writePadded(bw, rec, size); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

func varBytes(v *Variable) ([]byte, error) {
	data, err := v.Read()
	if err != nil {
		return nil, err
	}
	return encodeValues(data)
}

func writePadded(w io.Writer, raw []byte, size int64) error {
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if pad := size - int64(len(raw)); pad > 0 {
		_, err := w.Write(make([]byte, pad))
		return err
	}
	return nil
}

func encodeHeader(d *Dataset, dimIDs map[string]int32, vsize, begin func(*Variable) int64) ([]byte, error) {
	var e encoder
	e.buf.WriteString("CDF")
	e.buf.WriteByte(byte(d.Version))
	e.i32(int32(d.numRecs))

	if len(d.Dims) == 0 {
		e.i32(0)
		e.i32(0)
	} else {
		e.i32(tagDimension)
		e.i32(int32(len(d.Dims)))
		for _, dim := range d.Dims {
			e.name(dim.Name)
			if dim.Unlimited {
				e.i32(0)
			} else {
				e.i32(int32(dim.Len))
			}
		}
	}
	if err := e.attrs(d.Attrs); err != nil {
		return nil, err
	}

	if len(d.Vars) == 0 {
		e.i32(0)
		e.i32(0)
		return e.buf.Bytes(), nil
	}
	e.i32(tagVariable)
	e.i32(int32(len(d.Vars)))
	for _, v := range d.Vars {
		e.name(v.Name)
		e.i32(int32(len(v.Dims)))
		for _, dn := range v.Dims {
			id, ok := dimIDs[dn]
			if !ok {
				return nil, fmt.Errorf("netcdf: variable %q: unknown dimension %q", v.Name, dn)
			}
			e.i32(id)
		}
		if err := e.attrs(v.Attrs); err != nil {
			return nil, err
		}
		e.i32(int32(v.Type))
		e.u32(uint32(min(vsize(v), math.MaxUint32)))
		if d.Version == 1 {
			e.i32(int32(begin(v)))
		} else {
			e.i64(begin(v))
		}
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) u32(v uint32) { _ = binary.Write(&e.buf, binary.BigEndian, v) }
func (e *encoder) i32(v int32)  { _ = binary.Write(&e.buf, binary.BigEndian, v) }
func (e *encoder) i64(v int64)  { _ = binary.Write(&e.buf, binary.BigEndian, v) }

func (e *encoder) name(s string) {
	e.i32(int32(len(s)))
	e.padded([]byte(s))
}

func (e *encoder) padded(b []byte) {
	e.buf.Write(b)
	e.buf.Write(make([]byte, pad4(int64(len(b)))-int64(len(b))))
}

func (e *encoder) attrs(attrs []Attr) error {
	if len(attrs) == 0 {
		e.i32(0)
		e.i32(0)
		return nil
	}
	e.i32(tagAttribute)
	e.i32(int32(len(attrs)))
	for _, a := range attrs {
		t, n, err := typeOf(a.Value)
		if err != nil {
			return fmt.Errorf("netcdf: attribute %q: %w", a.Name, err)
		}
		raw, _ := encodeValues(a.Value)
		e.name(a.Name)
		e.i32(int32(t))
		e.i32(int32(n))
		e.padded(raw)
	}
	return nil
}

func encodeValues(v any) ([]byte, error) {
	if s, ok := v.(string); ok {
		return []byte(s), nil
	}
	if _, _, err := typeOf(v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
