package main

import (
	"errors"
	"io/fs"
	"runtime"
	"time"

	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/distance"
	qerrors "github.com/23skdu/qemistree/internal/errors"
	"github.com/23skdu/qemistree/internal/logging"
	"github.com/23skdu/qemistree/internal/pipeline"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable, e.g.
// QEMISTREE_LOG_LEVEL.
const EnvPrefix = "QEMISTREE"

// Config holds the settings shared by all subcommands. Flags override the
// values loaded from the environment.
type Config struct {
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""` // empty disables /metrics

	Metric      string  `envconfig:"METRIC" default:"jaccard-mz"`
	MZTolerance float64 `envconfig:"MZ_TOLERANCE" default:"0.01"`
	MatchPolicy string  `envconfig:"MATCH_POLICY" default:"strict"`
	MassColumn  string  `envconfig:"MASS_COLUMN" default:"row m/z"`
	Restrict    string  `envconfig:"RESTRICT" default:""`
	Workers     int     `envconfig:"WORKERS" default:"0"` // 0 means one per CPU

	OutputDir  string `envconfig:"OUTPUT_DIR" default:"./qemistree-out"`
	FlightAddr string `envconfig:"FLIGHT_ADDR" default:"0.0.0.0:3000"`

	KeepAliveTime                time.Duration `envconfig:"KEEPALIVE_TIME" default:"2h"`
	KeepAliveTimeout             time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	KeepAliveMinTime             time.Duration `envconfig:"KEEPALIVE_MIN_TIME" default:"5m"`
	KeepAlivePermitWithoutStream bool          `envconfig:"KEEPALIVE_PERMIT_WITHOUT_STREAM" default:"false"`

	GRPCMaxRecvMsgSize        int    `envconfig:"GRPC_MAX_RECV_MSG_SIZE" default:"67108864"`
	GRPCMaxSendMsgSize        int    `envconfig:"GRPC_MAX_SEND_MSG_SIZE" default:"67108864"`
	GRPCInitialWindowSize     int32  `envconfig:"GRPC_INITIAL_WINDOW_SIZE" default:"1048576"`
	GRPCInitialConnWindowSize int32  `envconfig:"GRPC_INITIAL_CONN_WINDOW_SIZE" default:"1048576"`
	GRPCMaxConcurrentStreams  uint32 `envconfig:"GRPC_MAX_CONCURRENT_STREAMS" default:"64"`
}

// Config validation errors
var (
	ErrInvalidLogFormat   = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel    = errors.New("log_level must be debug, info, warn, or error")
	ErrInvalidMetric      = errors.New("metric must be jaccard, jaccard-mz, euclidean, or cosine")
	ErrInvalidMZTolerance = errors.New("mz_tolerance must be non-negative")
	ErrInvalidMatchPolicy = errors.New("match_policy must be 'strict' or 'lenient'")
	ErrInvalidMassColumn  = errors.New("mass_column cannot be empty")
	ErrInvalidWorkers     = errors.New("workers must not be negative")
	ErrInvalidOutputDir   = errors.New("output_dir cannot be empty")
	ErrInvalidFlightAddr  = errors.New("flight_addr cannot be empty")
)

// LoadConfig reads an optional .env file, then the QEMISTREE_ environment.
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, qerrors.WrapConfigurationError(err, "load_config", "cannot read env file")
	}
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, qerrors.WrapConfigurationError(err, "load_config", "invalid environment")
	}
	return cfg, nil
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	if _, err := core.ParseDistanceMetric(cfg.Metric); err != nil {
		return ErrInvalidMetric
	}
	if cfg.MZTolerance < 0 {
		return ErrInvalidMZTolerance
	}
	if cfg.MatchPolicy != "strict" && cfg.MatchPolicy != "lenient" {
		return ErrInvalidMatchPolicy
	}
	if cfg.MassColumn == "" {
		return ErrInvalidMassColumn
	}
	if cfg.Workers < 0 {
		return ErrInvalidWorkers
	}
	if cfg.OutputDir == "" {
		return ErrInvalidOutputDir
	}
	if cfg.FlightAddr == "" {
		return ErrInvalidFlightAddr
	}
	return cfg.ValidateGRPCConfig()
}

// LoggingConfig maps the log settings onto the logging package.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Format = c.LogFormat
	lc.Level = c.LogLevel
	return lc
}

// PipelineOptions converts a validated Config into pipeline options.
func (c *Config) PipelineOptions() (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	metric, err := core.ParseDistanceMetric(c.Metric)
	if err != nil {
		return opts, err
	}
	policy, err := core.ParseMatchPolicy(c.MatchPolicy)
	if err != nil {
		return opts, err
	}
	opts.Metric = metric
	opts.Policy = policy
	opts.Distance = distance.Options{MZTolerance: c.MZTolerance, MassColumn: c.MassColumn}
	opts.Restrict = c.Restrict
	if c.Workers > 0 {
		opts.Workers = c.Workers
	} else {
		opts.Workers = runtime.NumCPU()
	}
	return opts, nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		LogFormat:                    "json",
		LogLevel:                     "info",
		MetricsAddr:                  "",
		Metric:                       string(core.MetricJaccardMZ),
		MZTolerance:                  distance.DefaultMZTolerance,
		MatchPolicy:                  "strict",
		MassColumn:                   table.DefaultMassColumn,
		Workers:                      0,
		OutputDir:                    "./qemistree-out",
		FlightAddr:                   "0.0.0.0:3000",
		KeepAliveTime:                2 * time.Hour,
		KeepAliveTimeout:             20 * time.Second,
		KeepAliveMinTime:             5 * time.Minute,
		KeepAlivePermitWithoutStream: false,
		GRPCMaxRecvMsgSize:           64 << 20, // 64MB
		GRPCMaxSendMsgSize:           64 << 20,
		GRPCInitialWindowSize:        1 << 20, // 1MB
		GRPCInitialConnWindowSize:    1 << 20,
		GRPCMaxConcurrentStreams:     64,
	}
}
