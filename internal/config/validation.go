package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks an AppConfig for values the daemon cannot start with.
func Validate(cfg AppConfig) error {
	if err := validateListenAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen address: %w", err)
	}
	if cfg.MetricsEnabled && cfg.MetricsAddr != "" {
		if err := validateListenAddr(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("metrics address: %w", err)
		}
	}
	if cfg.Dimensions != 2 && cfg.Dimensions != 3 {
		return fmt.Errorf("dimensions must be 2 or 3, got %d", cfg.Dimensions)
	}
	if cfg.MDSMaxIter < 1 {
		return fmt.Errorf("mds max iterations must be positive, got %d", cfg.MDSMaxIter)
	}
	if cfg.MDSEps <= 0 {
		return fmt.Errorf("mds eps must be positive, got %g", cfg.MDSEps)
	}
	if cfg.RunRetention < 0 {
		return fmt.Errorf("run retention must not be negative, got %d", cfg.RunRetention)
	}
	if cfg.RateLimitEnabled && cfg.RateLimitRPM < 1 {
		return fmt.Errorf("rate limit rpm must be positive, got %d", cfg.RateLimitRPM)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("data dir must not be empty")
	}
	return nil
}

func validateListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if port == "" {
		return fmt.Errorf("address %q is missing a port", addr)
	}
	if host != "" {
		if ip := net.ParseIP(host); ip == nil {
			// Hostnames are allowed; reject only obviously broken values.
			if strings.ContainsAny(host, " /") {
				return fmt.Errorf("invalid host %q", host)
			}
		}
	}
	return nil
}
