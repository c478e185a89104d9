package opener

import (
	"context"
	"errors"
	"fmt"
	"io"

	"strata/internal/logging"
	"strata/internal/netcdf"
	"strata/internal/pattern"
	"strata/internal/storage"
)

var (
	// ErrUnsupportedFileType is returned for formats this reader cannot decode.
	ErrUnsupportedFileType = errors.New("opener: unsupported file type")
	// ErrCopyToLocalLocation is returned when CopyToLocal is asked of a plain
	// location string rather than an open file.
	ErrCopyToLocalLocation = errors.New("opener: copy_to_local needs an open file, not a location")
)

// ArrayOptions configure OpenWithArray.
type ArrayOptions struct {
	// FileType skips detection when set.
	FileType pattern.FileType
	// Load reads every variable into memory and releases the file.
	Load bool
	// CopyToLocal copies the file to local disk before opening it.
	CopyToLocal bool
	// OpenKwargs are decoded into ReadOptions; unknown keys are an error.
	OpenKwargs map[string]any
}

// ReadOptions are the open kwargs the array reader understands.
type ReadOptions struct {
	DropVariables []string `mapstructure:"drop_variables"`
}

// OpenWithArray opens resource, a storage.File or a location string, as a
// dataset. On success the dataset owns the file it reads from and closing the
// dataset closes it. On failure a storage.File resource is left open and
// still belongs to the caller, so the call can be retried.
func OpenWithArray(ctx context.Context, resource any, opts ArrayOptions) (*netcdf.Dataset, error) {
	ft, err := pattern.ParseFileType(string(opts.FileType))
	if err != nil {
		return nil, err
	}
	opts.FileType = ft
	var ro ReadOptions
	if len(opts.OpenKwargs) > 0 {
		if err := decode(opts.OpenKwargs, &ro); err != nil {
			return nil, fmt.Errorf("array open kwargs: %w", err)
		}
	}

	switch r := resource.(type) {
	case storage.File:
		return openFile(r, opts, ro)
	case string:
		if opts.CopyToLocal {
			return nil, ErrCopyToLocalLocation
		}
		if opts.FileType == pattern.OPeNDAP {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, opts.FileType)
		}
		f, err := OpenURL(ctx, r, URLOptions{})
		if err != nil {
			return nil, err
		}
		ds, err := openFile(f, opts, ro)
		if err != nil {
			_ = f.Close()
		}
		return ds, err
	case nil:
		return nil, errors.New("opener: nil resource")
	default:
		return nil, fmt.Errorf("opener: cannot open %T as an array", resource)
	}
}

// openFile leaves f untouched on failure. On success f is owned by the
// dataset, or closed when a local copy or Load replaced it.
func openFile(f storage.File, opts ArrayOptions, ro ReadOptions) (*netcdf.Dataset, error) {
	src := f
	copied := false
	if opts.CopyToLocal {
		local, err := copyToLocal(f)
		if err != nil {
			return nil, err
		}
		src, copied = local, true
	}

	ds, err := openDataset(src, opts.FileType, ro)
	if err == nil && opts.Load {
		err = ds.Load()
	}
	if err != nil {
		if copied {
			_ = src.Close()
		}
		return nil, err
	}

	if copied {
		_ = f.Close()
	}
	if opts.Load {
		_ = src.Close()
	} else {
		ds.Own(src)
	}
	return ds, nil
}

func openDataset(f storage.File, ft pattern.FileType, ro ReadOptions) (*netcdf.Dataset, error) {
	if ft == pattern.Unknown || ft == "" {
		detected, err := DetectFileType(f)
		if err != nil {
			return nil, err
		}
		logging.L().Debug("detected file type", "name", f.Name(), "file_type", detected)
		ft = detected
	}
	if ft != pattern.NetCDF3 {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFileType, ft, f.Name())
	}
	size, err := storage.Size(f)
	if err != nil {
		return nil, err
	}
	return netcdf.Open(f,
		netcdf.WithName(f.Name()),
		netcdf.WithSize(size),
		netcdf.WithDropVariables(ro.DropVariables...),
	)
}

// DetectFileType sniffs the leading bytes of f.
func DetectFileType(f io.ReaderAt) (pattern.FileType, error) {
	var magic [8]byte
	n, err := f.ReadAt(magic[:], 0)
	if n < 4 {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return pattern.Unknown, fmt.Errorf("detect file type: %w", err)
	}
	switch {
	case string(magic[:3]) == "CDF" && (magic[3] == 1 || magic[3] == 2):
		return pattern.NetCDF3, nil
	case n == 8 && string(magic[:]) == "\x89HDF\r\n\x1a\n":
		return pattern.NetCDF4, nil
	case string(magic[:4]) == "GRIB":
		return pattern.Grib, nil
	default:
		return pattern.Unknown, fmt.Errorf("%w: unrecognised header %q", ErrUnsupportedFileType, magic[:n])
	}
}

func copyToLocal(f storage.File) (storage.File, error) {
	tf, err := storage.NewTempFile(f.Name())
	if err != nil {
		return nil, err
	}
	if err := copyTo(tf.File, f); err != nil {
		_ = tf.Close()
		return nil, fmt.Errorf("copy to local: %w", err)
	}
	logging.L().Debug("copied to local", "name", f.Name(), "path", tf.Path())
	return tf, nil
}
