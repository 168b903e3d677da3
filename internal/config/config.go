// Package config resolves dicompreset settings. Values are layered with
// priority flags > environment > YAML profile > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dicompreset/internal/blob"
	"dicompreset/internal/manifest"
)

// EnvPrefix prefixes every environment variable; the rest is the setting key
// upper-cased with dashes turned into underscores (DICOMPRESET_ACCESS_KEY).
const EnvPrefix = "DICOMPRESET_"

// Source modes.
const (
	ModeLocal = "local"
	ModeCloud = "cloud"
)

// Config is the full set of export settings.
type Config struct {
	Mode   string      `yaml:"mode"`
	Driver blob.Driver `yaml:"driver"` // cloud backend: s3 or gcs

	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	SessionToken string `yaml:"session_token"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	PathStyle    bool   `yaml:"path_style"`
	Bucket       string `yaml:"bucket"`

	GCSCredentialsFile string `yaml:"gcs_credentials_file"`

	DataPath string `yaml:"data_path"`
	Format   string `yaml:"format"`

	OutputDir    string `yaml:"output_dir"`
	OutputPrefix string `yaml:"output_prefix"` // upload to the bucket instead of OutputDir when set

	Concurrency  int           `yaml:"concurrency"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsFile string `yaml:"metrics_file"`
	TraceFile   string `yaml:"trace_file"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Mode:        ModeLocal,
		Driver:      blob.DriverS3,
		Region:      "us-east-1",
		Format:      "v1",
		OutputDir:   ".",
		Concurrency: 8,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load builds a Config from defaults, the YAML profile at path (optional; a
// missing file is ignored) and the environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, key := range Keys() {
		name := EnvName(key)
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		if err := c.Set(key, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// EnvName returns the environment variable for a setting key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

var setters = map[string]func(c *Config, v string) error{
	"mode":          func(c *Config, v string) error { c.Mode = v; return nil },
	"driver":        func(c *Config, v string) error { c.Driver = blob.Driver(v); return nil },
	"access-key":    func(c *Config, v string) error { c.AccessKey = v; return nil },
	"secret-key":    func(c *Config, v string) error { c.SecretKey = v; return nil },
	"session-token": func(c *Config, v string) error { c.SessionToken = v; return nil },
	"region":        func(c *Config, v string) error { c.Region = v; return nil },
	"endpoint":      func(c *Config, v string) error { c.Endpoint = v; return nil },
	"path-style": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.PathStyle = b
		return nil
	},
	"bucket":               func(c *Config, v string) error { c.Bucket = v; return nil },
	"gcs-credentials-file": func(c *Config, v string) error { c.GCSCredentialsFile = v; return nil },
	"data-path":            func(c *Config, v string) error { c.DataPath = v; return nil },
	"format":               func(c *Config, v string) error { c.Format = v; return nil },
	"output-dir":           func(c *Config, v string) error { c.OutputDir = v; return nil },
	"output-prefix":        func(c *Config, v string) error { c.OutputPrefix = v; return nil },
	"concurrency": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Concurrency = n
		return nil
	},
	"fetch-timeout": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.FetchTimeout = d
		return nil
	},
	"log-level":    func(c *Config, v string) error { c.LogLevel = v; return nil },
	"log-format":   func(c *Config, v string) error { c.LogFormat = v; return nil },
	"metrics-file": func(c *Config, v string) error { c.MetricsFile = v; return nil },
	"trace-file":   func(c *Config, v string) error { c.TraceFile = v; return nil },
}

// Keys lists the setting keys accepted by Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns one setting from its string form. Keys match the CLI flag
// names. Unknown keys are an error.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	if err := set(c, value); err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return nil
}

// ManifestFormat parses Format.
func (c Config) ManifestFormat() (manifest.Format, error) {
	return manifest.ParseFormat(c.Format)
}

// Validate checks mode specific requirements.
func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeLocal:
	case ModeCloud:
		switch c.Driver {
		case blob.DriverS3:
			if c.Bucket == "" {
				errs = append(errs, errors.New("bucket is required in cloud mode"))
			}
			if (c.AccessKey == "") != (c.SecretKey == "") {
				errs = append(errs, errors.New("access key and secret key must be set together"))
			}
		case blob.DriverGCS:
			if c.Bucket == "" {
				errs = append(errs, errors.New("bucket is required in cloud mode"))
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported cloud driver %q", c.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q (want %s or %s)", c.Mode, ModeLocal, ModeCloud))
	}
	if _, err := c.ManifestFormat(); err != nil {
		errs = append(errs, err)
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency))
	}
	if c.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("fetch timeout must not be negative, got %s", c.FetchTimeout))
	}
	if c.OutputPrefix != "" && c.Mode != ModeCloud {
		errs = append(errs, errors.New("output prefix needs cloud mode"))
	}
	return errors.Join(errs...)
}

// BlobOptions returns the driver settings for the cloud bucket.
func (c Config) BlobOptions() blob.Options {
	return blob.Options{
		Driver: c.Driver,
		S3: blob.S3Config{
			Region:          c.Region,
			Bucket:          c.Bucket,
			Endpoint:        c.Endpoint,
			AccessKeyID:     c.AccessKey,
			SecretAccessKey: c.SecretKey,
			SessionToken:    c.SessionToken,
			PathStyle:       c.PathStyle,
		},
		GCS: blob.GCSConfig{
			Bucket:          c.Bucket,
			CredentialsFile: c.GCSCredentialsFile,
			Endpoint:        c.Endpoint,
		},
	}
}

// CloudPrefix is the listing prefix in cloud mode. The data path doubles as
// the bucket prefix; a trailing slash keeps "scans" from matching "scans2".
func (c Config) CloudPrefix() string {
	p := strings.Trim(c.DataPath, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
