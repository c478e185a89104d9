package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"strata/internal/netcdf"
	"strata/internal/opener"
	"strata/internal/pattern"
	"strata/internal/storage"
	"strata/internal/transport"
)

type inspectOptions struct {
	remote   string
	fileType string
	load     bool
	asJSON   bool
	cache    string
	s3       string
	timeout  time.Duration
	secrets  map[string]string
}

func newInspectCmd() *cobra.Command {
	opts := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect <url>",
		Short: "Open one URL and describe the dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := pattern.ParseFileType(opts.fileType)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}

			var s netcdf.Summary
			if opts.remote != "" {
				c, err := transport.Dial(opts.remote)
				if err != nil {
					return err
				}
				defer c.Close()
				if s, err = c.Inspect(ctx, args[0], ft, opts.load); err != nil {
					return err
				}
			} else {
				uo := opener.URLOptions{Secrets: opts.secrets}
				if opts.s3 != "" {
					mc, err := storage.LoadMinioConfig(opts.s3)
					if err != nil {
						return err
					}
					if err := opener.RegisterS3(mc); err != nil {
						return err
					}
				}
				if opts.cache != "" {
					cc, err := storage.LoadConfig(opts.cache)
					if err != nil {
						return err
					}
					if uo.Cache, err = storage.NewCache(cc); err != nil {
						return err
					}
					defer uo.Cache.Close()
				}
				if s, err = opener.Inspect(ctx, args[0], uo, opener.ArrayOptions{FileType: ft, Load: opts.load}); err != nil {
					return err
				}
			}

			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			return printSummary(cmd, s)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.remote, "remote", "", "inspect through the engine at host:port")
	f.StringVar(&opts.fileType, "file-type", "", "skip detection: netcdf3|netcdf4|grib|opendap|zarr")
	f.BoolVar(&opts.load, "load", false, "read every variable into memory")
	f.BoolVar(&opts.asJSON, "json", false, "print the summary as JSON")
	f.StringVar(&opts.cache, "cache", "", "cache config (local inspection only)")
	f.StringVar(&opts.s3, "s3", "", "S3 endpoint config for s3:// URLs (local inspection only)")
	f.DurationVar(&opts.timeout, "timeout", 0, "give up after this long")
	f.StringToStringVar(&opts.secrets, "secret", nil, "query parameter added to the URL (repeatable, key=value)")
	return cmd
}

func printSummary(cmd *cobra.Command, s netcdf.Summary) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "name:\t%s\n", s.Name)
	fmt.Fprintf(w, "format:\tCDF-%d\n", s.Version)
	fmt.Fprintf(w, "size:\t%s\n", humanize.Bytes(uint64(s.Bytes)))

	dims := make([]string, 0, len(s.Dims))
	for name, n := range s.Dims {
		dims = append(dims, fmt.Sprintf("%s=%d", name, n))
	}
	sort.Strings(dims)
	fmt.Fprintf(w, "dims:\t%s\n", strings.Join(dims, " "))

	fmt.Fprintln(w, "\nVARIABLE\tTYPE\tDIMS\tSIZE")
	for _, v := range s.Vars {
		fmt.Fprintf(w, "%s\t%s\t(%s)\t%s\n", v.Name, v.Type, strings.Join(v.Dims, ", "), humanize.Bytes(uint64(v.Bytes)))
	}
	return w.Flush()
}
