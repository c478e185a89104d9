package pipeline

import (
	"fmt"
	"time"

	"strata/internal/config"
	"strata/internal/opener"
	"strata/internal/pattern"
	"strata/internal/spec"
	"strata/internal/storage"
	"strata/internal/stream"
	"strata/internal/transforms"
	"strata/sink"
	kafkasink "strata/sink/kafka"
	ncsink "strata/sink/netcdf"
	"strata/sink/stdout"
	"strata/source"
	"strata/source/filepattern"
	kafkasrc "strata/source/kafka"
)

func Compile(path string) (*Runner, error) {
	r := NewRunner()
	if err := LoadYAML(path, r); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func LoadYAML(path string, r *Runner) error {
	cfg, confPath, err := config.LoadPipelineSpec(path)
	if err != nil {
		return err
	}

	/*──────── source ───────*/
	src, err := source.NewAdapter(cfg.Source.Kind, cfg.Source.Driver)
	if err != nil {
		return err
	}
	fileType := cfg.OpenWithArray.FileType
	switch cfg.Source.Kind {
	case "kafka":
		kc, err := kafkasrc.LoadConfig(confPath)
		if err != nil {
			return err
		}
		if err = src.Configure(kc); err != nil {
			return err
		}
	case "pattern":
		pc, err := filepattern.LoadConfig(confPath)
		if err != nil {
			return err
		}
		if err = src.Configure(pc); err != nil {
			return err
		}
		if fileType == "" {
			fileType = pc.FileType
		}
	default:
		return fmt.Errorf("unsupported source %q", cfg.Source.Kind)
	}
	r.SetSource(src)

	if a, ok := src.(source.Acker); ok {
		r.SubscribeAck(a.OnAck)
	}

	/*──────── openers ───────*/
	if cfg.OpenURL.S3 != "" {
		mc, err := storage.LoadMinioConfig(cfg.OpenURL.S3)
		if err != nil {
			return fmt.Errorf("s3 config: %w", err)
		}
		if err := opener.RegisterS3(mc); err != nil {
			return err
		}
	}
	if cfg.OpenURL.Cache != "" {
		cc, err := storage.LoadConfig(cfg.OpenURL.Cache)
		if err != nil {
			return fmt.Errorf("cache config: %w", err)
		}
		cache, err := storage.NewCache(cc)
		if err != nil {
			return err
		}
		r.SetCache(cache)
	}
	r.SetOpenURL(transforms.OpenURL[pattern.Index]{
		Secrets:    cfg.OpenURL.Secrets,
		OpenKwargs: cfg.OpenURL.OpenKwargs,
	})

	ft, err := pattern.ParseFileType(fileType)
	if err != nil {
		return err
	}
	r.SetOpenWithArray(transforms.OpenWithArray[pattern.Index, storage.File]{
		FileType:    ft,
		Load:        cfg.OpenWithArray.Load,
		CopyToLocal: cfg.OpenWithArray.CopyToLocal,
		OpenKwargs:  cfg.OpenWithArray.OpenKwargs,
	})
	r.SetStreamOptions(streamOptions(cfg.Stages)...)

	/*──────── sinks ───────*/
	for _, name := range cfg.Sinks {
		sDrv, err := sink.NewAdapter(name)
		if err != nil {
			return err
		}

		switch name {
		case "stdout":
			err = sDrv.Configure(stdout.Config{
				DelayMS:      cfg.Debug.PerElementDelayMS,
				PrintCounter: cfg.Debug.PrintCounter,
				PrintAttrs:   cfg.Debug.PrintAttrs,
			})
		case "kafka":
			var kc kafkasink.Config
			if kc, err = kafkasink.LoadConfig(cfg.SinkConfigs.Kafka); err == nil {
				err = sDrv.Configure(kc)
			}
		case "netcdf":
			var nc ncsink.Config
			if nc, err = ncsink.LoadConfig(cfg.SinkConfigs.NetCDF); err == nil {
				err = sDrv.Configure(nc)
			}
		default:
			err = fmt.Errorf("no config block for sink %q", name)
		}
		if err != nil {
			return err
		}

		if ackAware, ok := sDrv.(sink.AckAware); ok {
			ackAware.BindAck(r.Ack)
		}
		r.AddSink(sDrv)
	}
	return nil
}

func streamOptions(s spec.StageSpec) []stream.Option {
	var stage []stream.StageOption
	if s.Workers > 0 {
		stage = append(stage, stream.WithWorkers(s.Workers))
	}
	if s.TimeoutMS > 0 {
		stage = append(stage, stream.WithTimeout(time.Duration(s.TimeoutMS)*time.Millisecond))
	}
	if s.RetryPolicy.Attempts > 0 {
		stage = append(stage, stream.WithRetry(s.RetryPolicy.Attempts, time.Duration(s.RetryPolicy.BackoffMS)*time.Millisecond))
	}
	return []stream.Option{stream.WithBuffer(s.Buffer), stream.WithStageDefaults(stage...)}
}
