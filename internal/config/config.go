// Package config loads and validates the voicemap daemon configuration.
// Precedence: environment > config file > defaults.
package config

import (
	"strings"
)

// AppConfig holds the full runtime configuration of the daemon.
type AppConfig struct {
	Version string `yaml:"-"`

	// Server
	ListenAddr     string   `yaml:"listenAddr"`
	MetricsEnabled bool     `yaml:"metricsEnabled"`
	MetricsAddr    string   `yaml:"metricsAddr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// Rate limiting
	RateLimitEnabled bool `yaml:"rateLimitEnabled"`
	RateLimitRPM     int  `yaml:"rateLimitRPM"`

	// Auth
	APIToken      string `yaml:"apiToken"`
	AuthAnonymous bool   `yaml:"authAnonymous"`

	// Dataset
	DataDir     string `yaml:"dataDir"`
	RatingsPath string `yaml:"ratingsPath"`
	AudioDir    string `yaml:"audioDir"`

	// Embedding
	Dimensions int     `yaml:"dimensions"`
	MDSMaxIter int     `yaml:"mdsMaxIter"`
	MDSEps     float64 `yaml:"mdsEps"`

	// Run history
	DBPath       string `yaml:"dbPath"`
	RunRetention int    `yaml:"runRetention"`

	// Behavior
	InitialRefresh bool `yaml:"initialRefresh"`
	WatchRatings   bool `yaml:"watchRatings"`

	// Logging
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`
}

// Defaults returns the built-in configuration defaults.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr:       ":8080",
		MetricsEnabled:   true,
		MetricsAddr:      "",
		RateLimitEnabled: true,
		RateLimitRPM:     600,
		DataDir:          "/data",
		RatingsPath:      "",
		AudioDir:         "",
		Dimensions:       2,
		MDSMaxIter:       300,
		MDSEps:           1e-6,
		DBPath:           "",
		RunRetention:     50,
		InitialRefresh:   true,
		WatchRatings:     false,
		LogLevel:         "info",
		LogService:       "voicemap",
	}
}

// FromEnv overlays environment variables on top of cfg and returns the result.
func FromEnv(cfg AppConfig) AppConfig {
	cfg.ListenAddr = ParseString("VOICEMAP_LISTEN", cfg.ListenAddr)
	cfg.MetricsEnabled = ParseBool("VOICEMAP_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = ParseString("VOICEMAP_METRICS_ADDR", cfg.MetricsAddr)
	cfg.RateLimitEnabled = ParseBool("VOICEMAP_RATE_LIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitRPM = ParseInt("VOICEMAP_RATE_LIMIT_RPM", cfg.RateLimitRPM)
	cfg.APIToken = ParseString("VOICEMAP_API_TOKEN", cfg.APIToken)
	cfg.AuthAnonymous = ParseBool("VOICEMAP_AUTH_ANONYMOUS", cfg.AuthAnonymous)
	cfg.DataDir = ParseString("VOICEMAP_DATA", cfg.DataDir)
	cfg.RatingsPath = ParseString("VOICEMAP_RATINGS", cfg.RatingsPath)
	cfg.AudioDir = ParseString("VOICEMAP_AUDIO_DIR", cfg.AudioDir)
	cfg.Dimensions = ParseInt("VOICEMAP_DIMENSIONS", cfg.Dimensions)
	cfg.MDSMaxIter = ParseInt("VOICEMAP_MDS_MAX_ITER", cfg.MDSMaxIter)
	cfg.MDSEps = ParseFloat("VOICEMAP_MDS_EPS", cfg.MDSEps)
	cfg.DBPath = ParseString("VOICEMAP_DB", cfg.DBPath)
	cfg.RunRetention = ParseInt("VOICEMAP_RUN_RETENTION", cfg.RunRetention)
	cfg.InitialRefresh = ParseBool("VOICEMAP_INITIAL_REFRESH", cfg.InitialRefresh)
	cfg.WatchRatings = ParseBool("VOICEMAP_WATCH", cfg.WatchRatings)
	cfg.LogLevel = ParseString("VOICEMAP_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("VOICEMAP_LOG_SERVICE", cfg.LogService)

	if origins := ParseString("VOICEMAP_ALLOWED_ORIGINS", ""); origins != "" {
		parts := strings.Split(origins, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		cfg.AllowedOrigins = out
	}

	return cfg
}
