package opener

import (
	"context"
	"net/url"
	"strings"

	"strata/internal/netcdf"
)

// Inspect opens rawURL as a dataset and returns its summary. Nothing is kept
// open afterwards.
func Inspect(ctx context.Context, rawURL string, uo URLOptions, ao ArrayOptions) (netcdf.Summary, error) {
	f, err := OpenURL(ctx, rawURL, uo)
	if err != nil {
		return netcdf.Summary{}, err
	}
	ds, err := OpenWithArray(ctx, f, ao)
	if err != nil {
		_ = f.Close()
		return netcdf.Summary{}, err
	}
	defer ds.Close()
	return ds.Summary(), nil
}

// IsLocal reports whether rawURL names a file on this machine.
func IsLocal(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || len(u.Scheme) <= 1 {
		return true
	}
	return strings.EqualFold(u.Scheme, "file")
}
