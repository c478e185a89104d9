package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// File is an open, readable, seekable handle to a resource's bytes. *os.File
// satisfies it.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
	// Name identifies where the bytes came from.
	Name() string
}

// Size reports the byte length of f without moving its read offset.
func Size(f File) (int64, error) {
	if st, ok := f.(interface{ Stat() (os.FileInfo, error) }); ok {
		if fi, err := st.Stat(); err == nil {
			return fi.Size(), nil
		}
	}
	cur, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	_, err = f.Seek(cur, io.SeekStart)
	return end, err
}

// TempFile is a local file removed from disk when closed.
type TempFile struct {
	*os.File
	name string
}

// NewTempFile creates an empty temp file reported under name.
func NewTempFile(name string) (*TempFile, error) {
	f, err := os.CreateTemp("", "strata-*")
	if err != nil {
		return nil, err
	}
	return &TempFile{File: f, name: name}, nil
}

// Spool copies r into a fresh TempFile and rewinds it.
func Spool(name string, r io.Reader) (*TempFile, error) {
	tf, err := NewTempFile(name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(tf.File, r); err != nil {
		_ = tf.Close()
		return nil, err
	}
	if _, err := tf.File.Seek(0, io.SeekStart); err != nil {
		_ = tf.Close()
		return nil, err
	}
	return tf, nil
}

func (t *TempFile) Name() string { return t.name }

// Path is the location of the copy on local disk.
func (t *TempFile) Path() string { return t.File.Name() }

func (t *TempFile) Close() error {
	return errors.Join(t.File.Close(), os.Remove(t.File.Name()))
}

type memFile struct {
	*bytes.Reader
	name string
}

// NewMemFile wraps an in-memory byte slice as a File.
func NewMemFile(name string, data []byte) File {
	return &memFile{Reader: bytes.NewReader(data), name: name}
}

func (m *memFile) Name() string { return m.name }
func (m *memFile) Close() error { return nil }
