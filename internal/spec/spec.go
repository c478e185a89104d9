package spec

type sinkConfigs struct {
	Kafka  string `yaml:"kafka"`
	NetCDF string `yaml:"netcdf"`
}

type debugSection struct {
	PerElementDelayMS int  `yaml:"per_element_delay_ms"`
	PrintCounter      bool `yaml:"print_counter"`
	PrintAttrs        bool `yaml:"print_attrs"`
}

type OpenURLSpec struct {
	Cache      string            `yaml:"cache"` // cache driver config; empty disables caching
	S3         string            `yaml:"s3"`    // S3 endpoint config; enables s3:// URLs
	Secrets    map[string]string `yaml:"secrets"`
	OpenKwargs map[string]any    `yaml:"open_kwargs"`
}

type OpenWithArraySpec struct {
	FileType    string         `yaml:"file_type"` // netcdf3, netcdf4, grib, opendap, zarr or empty
	Load        bool           `yaml:"load"`
	CopyToLocal bool           `yaml:"copy_to_local"`
	OpenKwargs  map[string]any `yaml:"open_kwargs"`
}

type StageSpec struct {
	Workers     int `yaml:"workers"`
	Buffer      int `yaml:"buffer"`
	TimeoutMS   int `yaml:"timeout_ms"`
	RetryPolicy struct {
		Attempts  int `yaml:"attempts"`
		BackoffMS int `yaml:"backoff_ms"`
	} `yaml:"retry_policy"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Source struct {
		Kind   string `yaml:"kind"`   // "pattern", "kafka"
		Driver string `yaml:"driver"` // kafka only: "sarama"
		Config string `yaml:"config"`
	} `yaml:"source"`

	OpenURL       OpenURLSpec       `yaml:"open_url"`
	OpenWithArray OpenWithArraySpec `yaml:"open_with_array"`
	Stages        StageSpec         `yaml:"stages"`

	Sinks       []string     `yaml:"sinks"`
	SinkConfigs sinkConfigs  `yaml:"sink_configs"`
	Debug       debugSection `yaml:"debug"`
}
