package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "TRAININGTIME_"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Library  LibraryConfig  `yaml:"library"`
	Storage  StorageConfig  `yaml:"storage"`
	Tracking TrackingConfig `yaml:"tracking"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	CORS bool   `yaml:"cors"`
	// RequestsPerMinute is the per-IP API limit; 0 disables it.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type LibraryConfig struct {
	Root         string        `yaml:"root"`
	ScanInterval time.Duration `yaml:"scan_interval"`
	Watch        bool          `yaml:"watch"`
}

type StorageConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	Synchronous string        `yaml:"synchronous"`
	CacheSize   int           `yaml:"cache_size"`
	ReadOnly    bool          `yaml:"read_only"`
}

type TrackingConfig struct {
	ResumeUnlocksSeek bool          `yaml:"resume_unlocks_seek"`
	PersistInterval   time.Duration `yaml:"persist_interval"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			RequestsPerMinute: 600,
		},
		Library: LibraryConfig{
			Root:         "./training",
			ScanInterval: 10 * time.Minute,
			Watch:        true,
		},
		Storage: StorageConfig{
			Path:        "./data/trainingtime.db",
			BusyTimeout: 5 * time.Second,
			Synchronous: "NORMAL",
			CacheSize:   -2000,
		},
		Tracking: TrackingConfig{
			ResumeUnlocksSeek: true,
			PersistInterval:   5 * time.Second,
			SessionTTL:        30 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (optional) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decode(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("server.requests_per_minute must be >= 0"))
	}
	if strings.TrimSpace(c.Library.Root) == "" {
		errs = append(errs, errors.New("library.root is required"))
	}
	if c.Library.ScanInterval < 0 {
		errs = append(errs, errors.New("library.scan_interval must be >= 0"))
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	switch strings.ToUpper(c.Storage.Synchronous) {
	case "", "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		errs = append(errs, fmt.Errorf("storage.synchronous %q is not a sqlite synchronous mode", c.Storage.Synchronous))
	}
	if c.Tracking.PersistInterval < 0 {
		errs = append(errs, errors.New("tracking.persist_interval must be >= 0"))
	}
	if c.Tracking.SessionTTL <= 0 {
		errs = append(errs, errors.New("tracking.session_ttl must be > 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(envPrefix + key); ok {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = parsed
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + key); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = parsed
		}
	}

	str("ADDR", &cfg.Server.Addr)
	boolean("CORS", &cfg.Server.CORS)
	str("LIBRARY_ROOT", &cfg.Library.Root)
	duration("SCAN_INTERVAL", &cfg.Library.ScanInterval)
	boolean("WATCH", &cfg.Library.Watch)
	str("DB", &cfg.Storage.Path)
	boolean("DB_READ_ONLY", &cfg.Storage.ReadOnly)
	boolean("RESUME_UNLOCKS_SEEK", &cfg.Tracking.ResumeUnlocksSeek)
	duration("PERSIST_INTERVAL", &cfg.Tracking.PersistInterval)
	duration("SESSION_TTL", &cfg.Tracking.SessionTTL)
	str("LOG_LEVEL", &cfg.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
