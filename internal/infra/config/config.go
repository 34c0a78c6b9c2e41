package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"port" yaml:"port"`

	DataRoot           string `mapstructure:"data_root" yaml:"data_root"`
	MaxDownloadBytes   int64  `mapstructure:"max_download_bytes" yaml:"max_download_bytes"`
	MaxExtractedBytes  int64  `mapstructure:"max_extracted_bytes" yaml:"max_extracted_bytes"`
	MaxFilesPerDataset int    `mapstructure:"max_files_per_dataset" yaml:"max_files_per_dataset"`

	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
}

type PipelineConfig struct {
	Enabled         bool    `mapstructure:"enabled" yaml:"enabled"`
	FileConcurrency int     `mapstructure:"file_concurrency" yaml:"file_concurrency"`
	BatchSize       int     `mapstructure:"batch_size" yaml:"batch_size"`
	FlushSeconds    float64 `mapstructure:"flush_seconds" yaml:"flush_seconds"`
	FetchTimeoutSec int     `mapstructure:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds"`
}

type ProvidersConfig struct {
	// DatasetHost is the archive-hosting provider's host, e.g. "www.kaggle.com".
	DatasetHost     string `mapstructure:"dataset_host" yaml:"dataset_host"`
	DatasetAPIUser  string `mapstructure:"dataset_api_user" yaml:"dataset_api_user"`
	DatasetAPIKey   string `mapstructure:"dataset_api_key" yaml:"dataset_api_key"`
	GitHubToken     string `mapstructure:"github_token" yaml:"github_token"`
	HTTPHeadersJSON string `mapstructure:"http_headers_json" yaml:"http_headers_json"`
	HTTPBasicUser   string `mapstructure:"http_basic_user" yaml:"http_basic_user"`
	HTTPBasicPass   string `mapstructure:"http_basic_pass" yaml:"http_basic_pass"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
	// PredictionLogPath receives one JSON line per modality prediction.
	PredictionLogPath string `mapstructure:"prediction_log_path" yaml:"prediction_log_path"`
}

type StoreConfig struct {
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// Load reads configuration from an optional YAML file plus DATASCAN_*
// environment variables. A missing file is fine unless the path was
// given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("data_root", "/tmp/datascan")
	v.SetDefault("max_download_bytes", int64(2_000_000_000))
	v.SetDefault("max_extracted_bytes", int64(5_000_000_000))
	v.SetDefault("max_files_per_dataset", 50_000)
	v.SetDefault("pipeline.enabled", true)
	v.SetDefault("pipeline.file_concurrency", 32)
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.flush_seconds", 1.0)
	v.SetDefault("pipeline.fetch_timeout_seconds", 120)
	v.SetDefault("providers.dataset_host", "www.kaggle.com")
	v.SetDefault("log.path", "datascan.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("store.sqlite_path", "datascan.db")

	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Support Environment Variables
	v.SetEnvPrefix("DATASCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DataRoot == "" {
		c.DataRoot = "/tmp/datascan"
	}

	if c.MaxDownloadBytes <= 0 {
		return fmt.Errorf("max_download_bytes must be positive, got %d", c.MaxDownloadBytes)
	}

	if c.MaxExtractedBytes <= 0 {
		return fmt.Errorf("max_extracted_bytes must be positive, got %d", c.MaxExtractedBytes)
	}

	if c.MaxFilesPerDataset <= 0 {
		return fmt.Errorf("max_files_per_dataset must be positive, got %d", c.MaxFilesPerDataset)
	}

	if c.Pipeline.FileConcurrency <= 0 {
		// Default to a sane value
		c.Pipeline.FileConcurrency = 1
	}

	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 10
	}

	if c.Pipeline.FlushSeconds <= 0 {
		c.Pipeline.FlushSeconds = 1.0
	}

	if c.Pipeline.FetchTimeoutSec <= 0 {
		c.Pipeline.FetchTimeoutSec = 120
	}

	return nil
}
