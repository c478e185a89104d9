package pattern

import (
	"fmt"
	"strings"
)

// FileType is a hint about the on-disk format of a pattern's files.
type FileType string

const (
	Unknown FileType = "unknown"
	NetCDF3 FileType = "netcdf3"
	NetCDF4 FileType = "netcdf4"
	Grib    FileType = "grib"
	OPeNDAP FileType = "opendap"
	Zarr    FileType = "zarr"
)

// ParseFileType maps a config string onto a FileType. Empty means Unknown.
func ParseFileType(s string) (FileType, error) {
	switch ft := FileType(strings.ToLower(strings.TrimSpace(s))); ft {
	case "":
		return Unknown, nil
	case Unknown, NetCDF3, NetCDF4, Grib, OPeNDAP, Zarr:
		return ft, nil
	default:
		return Unknown, fmt.Errorf("pattern: unknown file type %q", s)
	}
}
