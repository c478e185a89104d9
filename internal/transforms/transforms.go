// Package transforms wraps the opener functions as pipeline transforms over
// keyed elements. Each element's key passes through untouched; only the
// value is opened.
package transforms

import (
	"context"
	"fmt"
	"maps"
	"reflect"

	"strata/internal/keyed"
	"strata/internal/netcdf"
	"strata/internal/opener"
	"strata/internal/pattern"
	"strata/internal/storage"
	"strata/internal/stream"
)

const (
	LabelOpenURL       = "Open URL"
	LabelOpenWithArray = "Open with array reader"
)

// OpenURL opens every element's URL, through Cache when one is set.
type OpenURL[K any] struct {
	Cache      storage.Cache
	Secrets    map[string]string
	OpenKwargs map[string]any
}

func (OpenURL[K]) Label() string { return LabelOpenURL }

func (t OpenURL[K]) Expand(c *stream.Collection[keyed.Indexed[K, string]]) (*stream.Collection[keyed.Indexed[K, storage.File]], error) {
	fn, err := keyed.AddKeys[K](opener.OpenURL)
	if err != nil {
		return nil, err
	}
	opts := opener.URLOptions{
		Cache:      t.Cache,
		Secrets:    maps.Clone(t.Secrets),
		OpenKwargs: maps.Clone(t.OpenKwargs),
	}
	return stream.Map(c, t.Label(), keyed.Bind(fn, opts)), nil
}

// OpenWithArray opens every element's value as a dataset. R is either
// storage.File (or a type implementing it) or string.
type OpenWithArray[K, R any] struct {
	FileType    pattern.FileType
	Load        bool
	CopyToLocal bool
	OpenKwargs  map[string]any
}

func (OpenWithArray[K, R]) Label() string { return LabelOpenWithArray }

func (t OpenWithArray[K, R]) Expand(c *stream.Collection[keyed.Indexed[K, R]]) (*stream.Collection[keyed.Indexed[K, *netcdf.Dataset]], error) {
	ft, err := t.validate()
	if err != nil {
		return nil, err
	}
	fn, err := keyed.AddKeys[K](openArray[R])
	if err != nil {
		return nil, err
	}
	opts := opener.ArrayOptions{
		FileType:    ft,
		Load:        t.Load,
		CopyToLocal: t.CopyToLocal,
		OpenKwargs:  maps.Clone(t.OpenKwargs),
	}
	return stream.Map(c, t.Label(), keyed.Bind(fn, opts)), nil
}

var (
	stringType = reflect.TypeFor[string]()
	fileType   = reflect.TypeFor[storage.File]()
)

// validate checks the configuration against R and returns the normalised
// file type.
func (t OpenWithArray[K, R]) validate() (pattern.FileType, error) {
	ft, err := pattern.ParseFileType(string(t.FileType))
	if err != nil {
		return ft, err
	}
	rt := reflect.TypeFor[R]()
	switch {
	case rt == stringType:
		if t.CopyToLocal {
			return ft, opener.ErrCopyToLocalLocation
		}
	case rt.Implements(fileType):
	default:
		return ft, fmt.Errorf("transforms: cannot open %s as an array", rt)
	}
	return ft, nil
}

func openArray[R any](ctx context.Context, r R, opts opener.ArrayOptions) (*netcdf.Dataset, error) {
	return opener.OpenWithArray(ctx, r, opts)
}
