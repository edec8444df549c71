package config

import (
	"fmt"
	"strings"

	"github.com/hedisam/matpipe/matrix"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the runtime configuration of the dispatcher and its workers.
type Config struct {
	// Rows and Cols are the fixed shape of every matrix of the run.
	Rows int `mapstructure:"rows"`
	Cols int `mapstructure:"cols"`
	// OutputDir is where the workers' output files are created.
	OutputDir string `mapstructure:"output_dir"`
	// MaxFilenameLen truncates the filenames read from the console.
	MaxFilenameLen int `mapstructure:"max_filename_len"`
	// Format of the rendered matrices: text or yaml.
	Format string `mapstructure:"format"`
	// LogLevel of the dispatcher and workers diagnostics.
	LogLevel string `mapstructure:"log_level"`
	// StrictExit makes the dispatcher exit with 1 if any worker failed.
	StrictExit bool `mapstructure:"strict_exit"`
	// RowLimit caps the number of rows computed at once by a worker; 0 means no cap.
	RowLimit int `mapstructure:"row_limit"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rows", 8)
	v.SetDefault("cols", 8)
	v.SetDefault("output_dir", ".")
	v.SetDefault("max_filename_len", 126)
	v.SetDefault("format", "text")
	v.SetDefault("log_level", "warn")
	v.SetDefault("strict_exit", false)
	v.SetDefault("row_limit", 0)
}

// Load reads the configuration from v: defaults, then the config file at path if any, then MATMUL_* environment
// variables and any flags already bound to v.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("matmul")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		err := v.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("config: Load: failed to read %s: %w", path, err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("config: Load: failed to decode: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	err := c.Dims().Validate()
	if err != nil {
		return fmt.Errorf("config: Validate: %w", err)
	}
	if c.MaxFilenameLen <= 0 {
		return fmt.Errorf("config: Validate: max_filename_len must be positive, got %d", c.MaxFilenameLen)
	}
	if c.RowLimit < 0 {
		return fmt.Errorf("config: Validate: row_limit must not be negative, got %d", c.RowLimit)
	}
	if _, err = matrix.NewRenderer(c.Format); err != nil {
		return fmt.Errorf("config: Validate: %w", err)
	}
	if _, err = logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: Validate: %w", err)
	}

	return nil
}

// Dims returns the matrix shape of the run.
func (c *Config) Dims() matrix.Dims {
	return matrix.Dims{Rows: c.Rows, Cols: c.Cols}
}

// Level returns the parsed log level. Validate must have succeeded.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.WarnLevel
	}
	return lvl
}
