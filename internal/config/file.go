package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader resolves the effective configuration from defaults, an optional
// YAML file, and the environment. Environment variables win.
type Loader struct {
	path    string
	version string
}

// NewLoader returns a Loader for the given config file path. An empty path
// skips the file layer entirely.
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Load resolves the effective configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.path != "" {
		fileCfg, err := readFile(l.path)
		if err != nil {
			return AppConfig{}, err
		}
		cfg = mergeFile(cfg, fileCfg)
	}

	cfg = FromEnv(cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// fileConfig mirrors AppConfig with pointer fields so that absent YAML keys
// can be distinguished from zero values.
type fileConfig struct {
	ListenAddr       *string   `yaml:"listenAddr"`
	MetricsEnabled   *bool     `yaml:"metricsEnabled"`
	MetricsAddr      *string   `yaml:"metricsAddr"`
	AllowedOrigins   *[]string `yaml:"allowedOrigins"`
	RateLimitEnabled *bool     `yaml:"rateLimitEnabled"`
	RateLimitRPM     *int      `yaml:"rateLimitRPM"`
	APIToken         *string   `yaml:"apiToken"`
	AuthAnonymous    *bool     `yaml:"authAnonymous"`
	DataDir          *string   `yaml:"dataDir"`
	RatingsPath      *string   `yaml:"ratingsPath"`
	AudioDir         *string   `yaml:"audioDir"`
	Dimensions       *int      `yaml:"dimensions"`
	MDSMaxIter       *int      `yaml:"mdsMaxIter"`
	MDSEps           *float64  `yaml:"mdsEps"`
	DBPath           *string   `yaml:"dbPath"`
	RunRetention     *int      `yaml:"runRetention"`
	InitialRefresh   *bool     `yaml:"initialRefresh"`
	WatchRatings     *bool     `yaml:"watchRatings"`
	LogLevel         *string   `yaml:"logLevel"`
	LogService       *string   `yaml:"logService"`
}

func readFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileConfig{}, fmt.Errorf("config file %s not found: %w", path, err)
		}
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func mergeFile(cfg AppConfig, fc fileConfig) AppConfig {
	if fc.ListenAddr != nil {
		cfg.ListenAddr = *fc.ListenAddr
	}
	if fc.MetricsEnabled != nil {
		cfg.MetricsEnabled = *fc.MetricsEnabled
	}
	if fc.MetricsAddr != nil {
		cfg.MetricsAddr = *fc.MetricsAddr
	}
	if fc.AllowedOrigins != nil {
		cfg.AllowedOrigins = *fc.AllowedOrigins
	}
	if fc.RateLimitEnabled != nil {
		cfg.RateLimitEnabled = *fc.RateLimitEnabled
	}
	if fc.RateLimitRPM != nil {
		cfg.RateLimitRPM = *fc.RateLimitRPM
	}
	if fc.APIToken != nil {
		cfg.APIToken = *fc.APIToken
	}
	if fc.AuthAnonymous != nil {
		cfg.AuthAnonymous = *fc.AuthAnonymous
	}
	if fc.DataDir != nil {
		cfg.DataDir = *fc.DataDir
	}
	if fc.RatingsPath != nil {
		cfg.RatingsPath = *fc.RatingsPath
	}
	if fc.AudioDir != nil {
		cfg.AudioDir = *fc.AudioDir
	}
	if fc.Dimensions != nil {
		cfg.Dimensions = *fc.Dimensions
	}
	if fc.MDSMaxIter != nil {
		cfg.MDSMaxIter = *fc.MDSMaxIter
	}
	if fc.MDSEps != nil {
		cfg.MDSEps = *fc.MDSEps
	}
	if fc.DBPath != nil {
		cfg.DBPath = *fc.DBPath
	}
	if fc.RunRetention != nil {
		cfg.RunRetention = *fc.RunRetention
	}
	if fc.InitialRefresh != nil {
		cfg.InitialRefresh = *fc.InitialRefresh
	}
	if fc.WatchRatings != nil {
		cfg.WatchRatings = *fc.WatchRatings
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.LogService != nil {
		cfg.LogService = *fc.LogService
	}
	return cfg
}
