package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/cdsfetch/internal/cds"
	"github.com/ligustah/cdsfetch/internal/logger"
)

// Config defines configuration for the cdsfetch CLI.
type Config struct {
	OutputDir        string        `yaml:"output_dir"`
	Dataset          string        `yaml:"dataset"`
	Prefix           string        `yaml:"prefix"`
	Ext              string        `yaml:"ext"`
	YearFirst        int           `yaml:"year_first"`
	YearLast         int           `yaml:"year_last"`
	Workers          int           `yaml:"workers"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
	JobTimeout       time.Duration `yaml:"job_timeout"`
	Credentials      string        `yaml:"credentials"`
	LogLevel         string        `yaml:"log_level"`
	Progress         bool          `yaml:"progress"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	Request          RequestConfig `yaml:"request"`
	API              APIConfig     `yaml:"api"`
}

// RequestConfig holds the per-year request template fields.
type RequestConfig struct {
	Variable  string `yaml:"variable"`
	Version   string `yaml:"version"`
	Format    string `yaml:"format"`
	Statistic string `yaml:"statistic"`
}

// APIConfig configures how the CDS API is polled.
type APIConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollInterval time.Duration `yaml:"max_poll_interval"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	tmpl := cds.DefaultTemplate()
	api := cds.DefaultOptions()
	return Config{
		Dataset:          "sis-agrometeorological-indicators",
		Prefix:           "AgERA5",
		Ext:              "tar.gz",
		YearFirst:        1990,
		YearLast:         1999,
		Workers:          10,
		ReadyTimeout:     10 * time.Second,
		JobTimeout:       6 * time.Hour,
		LogLevel:         "info",
		ProgressInterval: time.Minute,
		Request: RequestConfig{
			Variable:  tmpl.Variable,
			Version:   tmpl.Version,
			Format:    tmpl.Format,
			Statistic: tmpl.Statistic,
		},
		API: APIConfig{
			Timeout:         api.Timeout,
			PollInterval:    api.PollInterval,
			MaxPollInterval: api.MaxPollInterval,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	OutputDir        string        `yaml:"output_dir"`
	Dataset          string        `yaml:"dataset"`
	Prefix           string        `yaml:"prefix"`
	Ext              string        `yaml:"ext"`
	YearFirst        *int          `yaml:"year_first"`
	YearLast         *int          `yaml:"year_last"`
	Workers          *int          `yaml:"workers"`
	ReadyTimeout     string        `yaml:"ready_timeout"`
	JobTimeout       string        `yaml:"job_timeout"`
	Credentials      string        `yaml:"credentials"`
	LogLevel         string        `yaml:"log_level"`
	Progress         bool          `yaml:"progress"`
	ProgressInterval string        `yaml:"progress_interval"`
	Request          RequestConfig `yaml:"request"`
	API              yamlAPIConfig `yaml:"api"`
}

type yamlAPIConfig struct {
	Timeout         string `yaml:"timeout"`
	PollInterval    string `yaml:"poll_interval"`
	MaxPollInterval string `yaml:"max_poll_interval"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.Dataset != "" {
		cfg.Dataset = yc.Dataset
	}
	if yc.Prefix != "" {
		cfg.Prefix = yc.Prefix
	}
	if yc.Ext != "" {
		cfg.Ext = yc.Ext
	}
	if yc.YearFirst != nil {
		cfg.YearFirst = *yc.YearFirst
	}
	if yc.YearLast != nil {
		cfg.YearLast = *yc.YearLast
	}
	if yc.Workers != nil {
		cfg.Workers = *yc.Workers
	}
	if yc.Credentials != "" {
		cfg.Credentials = yc.Credentials
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	cfg.Progress = yc.Progress

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"ready_timeout", yc.ReadyTimeout, &cfg.ReadyTimeout},
		{"job_timeout", yc.JobTimeout, &cfg.JobTimeout},
		{"progress_interval", yc.ProgressInterval, &cfg.ProgressInterval},
		{"api.timeout", yc.API.Timeout, &cfg.API.Timeout},
		{"api.poll_interval", yc.API.PollInterval, &cfg.API.PollInterval},
		{"api.max_poll_interval", yc.API.MaxPollInterval, &cfg.API.MaxPollInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	if yc.Request.Variable != "" {
		cfg.Request.Variable = yc.Request.Variable
	}
	if yc.Request.Version != "" {
		cfg.Request.Version = yc.Request.Version
	}
	if yc.Request.Format != "" {
		cfg.Request.Format = yc.Request.Format
	}
	if yc.Request.Statistic != "" {
		cfg.Request.Statistic = yc.Request.Statistic
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the CDSFETCH_ prefix.
func (c *Config) LoadFromEnv() error {
	strs := []struct {
		key string
		dst *string
	}{
		{"CDSFETCH_OUTPUT_DIR", &c.OutputDir},
		{"CDSFETCH_DATASET", &c.Dataset},
		{"CDSFETCH_PREFIX", &c.Prefix},
		{"CDSFETCH_EXT", &c.Ext},
		{"CDSFETCH_CREDENTIALS", &c.Credentials},
		{"CDSFETCH_LOG_LEVEL", &c.LogLevel},
		{"CDSFETCH_VARIABLE", &c.Request.Variable},
		{"CDSFETCH_VERSION", &c.Request.Version},
		{"CDSFETCH_FORMAT", &c.Request.Format},
		{"CDSFETCH_STATISTIC", &c.Request.Statistic},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CDSFETCH_YEAR_FIRST", &c.YearFirst},
		{"CDSFETCH_YEAR_LAST", &c.YearLast},
		{"CDSFETCH_WORKERS", &c.Workers},
	}
	for _, i := range ints {
		if v := os.Getenv(i.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", i.key, err)
			}
			*i.dst = n
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CDSFETCH_READY_TIMEOUT", &c.ReadyTimeout},
		{"CDSFETCH_JOB_TIMEOUT", &c.JobTimeout},
		{"CDSFETCH_PROGRESS_INTERVAL", &c.ProgressInterval},
		{"CDSFETCH_API_TIMEOUT", &c.API.Timeout},
		{"CDSFETCH_POLL_INTERVAL", &c.API.PollInterval},
		{"CDSFETCH_MAX_POLL_INTERVAL", &c.API.MaxPollInterval},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	if v := os.Getenv("CDSFETCH_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("config: output_dir is required")
	}
	if c.Dataset == "" {
		return errors.New("config: dataset is required")
	}
	if c.Prefix == "" || c.Ext == "" {
		return errors.New("config: prefix and ext are required")
	}
	if c.YearFirst <= 0 || c.YearLast <= 0 {
		return errors.New("config: year_first and year_last must be positive")
	}
	if c.YearFirst > c.YearLast {
		return fmt.Errorf("config: year_first (%d) is after year_last (%d)", c.YearFirst, c.YearLast)
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.ReadyTimeout <= 0 {
		return errors.New("config: ready_timeout must be positive")
	}
	if c.JobTimeout < 0 {
		return errors.New("config: job_timeout must not be negative")
	}
	if c.Request.Variable == "" || c.Request.Format == "" {
		return errors.New("config: request.variable and request.format are required")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Template returns the CDS request sent for every year.
func (c *Config) Template() cds.Request {
	return cds.Request{
		Variable:  c.Request.Variable,
		Month:     cds.Months(),
		Day:       cds.Days(),
		Version:   c.Request.Version,
		Format:    c.Request.Format,
		Statistic: c.Request.Statistic,
	}
}
