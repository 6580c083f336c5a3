// Package config loads runtime configuration from TOML or YAML files and
// TASKPOOL_* environment variables.
package config

import (
	"bytes"
	"io"
	"strings"

	taskpool "github.com/Swind/go-task-pool"
	"github.com/Swind/go-task-pool/core"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// TASKPOOL_COMPUTE_THREAD_COUNT=4.
const EnvPrefix = "TASKPOOL"

// File is the on-disk representation of a runtime configuration.
type File struct {
	Backend      string `mapstructure:"backend" toml:"backend" yaml:"backend"`
	Cores        int    `mapstructure:"cores" toml:"cores" yaml:"cores"`
	StackSize    int    `mapstructure:"stack_size" toml:"stack_size" yaml:"stack_size"`
	LockOSThread bool   `mapstructure:"lock_os_thread" toml:"lock_os_thread" yaml:"lock_os_thread"`
	MinChunkSize int    `mapstructure:"min_chunk_size" toml:"min_chunk_size" yaml:"min_chunk_size"`
	LogLevel     string `mapstructure:"log_level" toml:"log_level" yaml:"log_level"`

	Compute      taskpool.SizingPolicy `mapstructure:"compute" toml:"compute" yaml:"compute"`
	AsyncCompute taskpool.SizingPolicy `mapstructure:"async_compute" toml:"async_compute" yaml:"async_compute"`
	IO           taskpool.SizingPolicy `mapstructure:"io" toml:"io" yaml:"io"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	def := taskpool.DefaultRuntimeConfig()
	return File{
		Backend:      "default",
		LogLevel:     "info",
		MinChunkSize: 16,
		Compute:      def.Compute,
		AsyncCompute: def.AsyncCompute,
		IO:           def.IO,
	}
}

// Load reads path (TOML or YAML, by extension) over the defaults and applies
// environment overrides. An empty path loads defaults and environment only.
func Load(path string) (File, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return File{}, errors.Wrapf(err, "reading config %s", path)
		}
	}
	return decode(v)
}

// Read parses cfg in the given format ("toml" or "yaml") over the defaults.
func Read(r io.Reader, format string) (File, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return File{}, errors.Wrapf(err, "parsing %s config", format)
	}
	return decode(v)
}

func decode(v *viper.Viper) (File, error) {
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return File{}, errors.Wrap(err, "decoding config")
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func setDefaults(v *viper.Viper, f File) {
	v.SetDefault("backend", f.Backend)
	v.SetDefault("cores", f.Cores)
	v.SetDefault("stack_size", f.StackSize)
	v.SetDefault("lock_os_thread", f.LockOSThread)
	v.SetDefault("min_chunk_size", f.MinChunkSize)
	v.SetDefault("log_level", f.LogLevel)
	for name, p := range map[string]taskpool.SizingPolicy{
		"compute":       f.Compute,
		"async_compute": f.AsyncCompute,
		"io":            f.IO,
	} {
		v.SetDefault(name+".thread_count", p.ThreadCount)
		v.SetDefault(name+".reserved_cores", p.ReservedCores)
		v.SetDefault(name+".multiplier", p.Multiplier)
		v.SetDefault(name+".min_threads", p.MinThreads)
		v.SetDefault(name+".max_threads", p.MaxThreads)
	}
}

// Validate checks values that the pools would otherwise reject later.
func (f File) Validate() error {
	if _, err := core.ParseBackend(f.Backend); err != nil {
		return &core.ConfigError{Field: "backend", Reason: err.Error()}
	}
	if _, err := parseLevel(f.LogLevel); err != nil {
		return &core.ConfigError{Field: "log_level", Reason: err.Error()}
	}
	if f.Cores < 0 {
		return &core.ConfigError{Field: "cores", Reason: "must not be negative"}
	}
	for name, p := range map[string]taskpool.SizingPolicy{
		"compute":       f.Compute,
		"async_compute": f.AsyncCompute,
		"io":            f.IO,
	} {
		if p.ThreadCount < 0 || p.MinThreads < 0 || p.MaxThreads < 0 || p.ReservedCores < 0 {
			return &core.ConfigError{Field: name, Reason: "counts must not be negative"}
		}
		if p.MaxThreads > 0 && p.MinThreads > p.MaxThreads {
			return &core.ConfigError{Field: name, Reason: "min_threads exceeds max_threads"}
		}
	}
	return nil
}

// RuntimeConfig converts the file into a taskpool.RuntimeConfig with a zap
// logger at the configured level.
func (f File) RuntimeConfig() (taskpool.RuntimeConfig, error) {
	backend, err := core.ParseBackend(f.Backend)
	if err != nil {
		return taskpool.RuntimeConfig{}, err
	}
	logger, err := NewLogger(f.LogLevel)
	if err != nil {
		return taskpool.RuntimeConfig{}, err
	}
	return taskpool.RuntimeConfig{
		Backend:      backend,
		Cores:        f.Cores,
		Compute:      f.Compute,
		AsyncCompute: f.AsyncCompute,
		IO:           f.IO,
		StackSize:    f.StackSize,
		LockOSThread: f.LockOSThread,
		MinChunkSize: f.MinChunkSize,
		Logger:       logger,
	}, nil
}

// NewLogger builds a production zap logger at level.
func NewLogger(level string) (*core.ZapLogger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	z, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return core.NewZapLogger(z.Named("taskpool")), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return lvl, errors.Wrapf(err, "parsing log level %q", level)
	}
	return lvl, nil
}

// Encode writes f as "toml" or "yaml".
func Encode(w io.Writer, f File, format string) error {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(format) {
	case "toml":
		out, err = toml.Marshal(f)
	case "yaml", "yml":
		out, err = yaml.Marshal(f)
	default:
		return errors.Errorf("unsupported config format %q", format)
	}
	if err != nil {
		return errors.Wrapf(err, "encoding %s config", format)
	}
	_, err = io.Copy(w, bytes.NewReader(out))
	return err
}
