package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"querygate/cli/internal/docquery"
	"querygate/cli/internal/errors"
)

// Environment variables read by LoadSettings.
const (
	EnvLogLevel          = "QUERYGATE_LOG_LEVEL"
	EnvLogFormat         = "QUERYGATE_LOG_FORMAT"
	EnvCacheBackend      = "QUERYGATE_CACHE_BACKEND"
	EnvRedisURL          = "QUERYGATE_REDIS_URL"
	EnvCacheTTL          = "QUERYGATE_CACHE_TTL"
	EnvExecTimeout       = "QUERYGATE_EXEC_TIMEOUT"
	EnvCacheTimeout      = "QUERYGATE_CACHE_TIMEOUT"
	EnvHistoryCap        = "QUERYGATE_HISTORY_CAP"
	EnvDefaultCollection = "QUERYGATE_DEFAULT_COLLECTION"
)

// Settings are runtime knobs that are not persisted.
type Settings struct {
	LogLevel          string
	LogFormat         string
	CacheBackend      string
	RedisURL          string
	CacheTTL          time.Duration
	ExecTimeout       time.Duration
	CacheTimeout      time.Duration
	HistoryCap        int
	DefaultCollection string
}

// DefaultSettings mirrors the package defaults of the pipeline components.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:          "warn",
		LogFormat:         "console",
		CacheBackend:      "memory",
		RedisURL:          "redis://localhost:6379/0",
		CacheTTL:          300 * time.Second,
		ExecTimeout:       30 * time.Second,
		CacheTimeout:      2 * time.Second,
		HistoryCap:        50,
		DefaultCollection: docquery.DefaultCollection,
	}
}

// LoadSettings reads Settings from the environment. Unset variables keep
// their defaults; malformed ones are config errors.
func LoadSettings() (Settings, error) {
	s := DefaultSettings()
	var err error

	s.LogLevel = GetAsString(EnvLogLevel, s.LogLevel)
	s.LogFormat = GetAsString(EnvLogFormat, s.LogFormat)
	s.CacheBackend = strings.ToLower(GetAsString(EnvCacheBackend, s.CacheBackend))
	s.RedisURL = GetAsString(EnvRedisURL, s.RedisURL)
	s.DefaultCollection = GetAsString(EnvDefaultCollection, s.DefaultCollection)

	if s.CacheTTL, err = GetAsDuration(EnvCacheTTL, s.CacheTTL); err != nil {
		return s, err
	}
	if s.ExecTimeout, err = GetAsDuration(EnvExecTimeout, s.ExecTimeout); err != nil {
		return s, err
	}
	if s.CacheTimeout, err = GetAsDuration(EnvCacheTimeout, s.CacheTimeout); err != nil {
		return s, err
	}
	if s.HistoryCap, err = GetAsInt(EnvHistoryCap, s.HistoryCap); err != nil {
		return s, err
	}

	switch s.CacheBackend {
	case "redis", "memory", "none":
	default:
		return s, errors.Newf(errors.Config, "%s must be redis, memory or none, got %q", EnvCacheBackend, s.CacheBackend)
	}
	if s.HistoryCap <= 0 {
		return s, errors.Newf(errors.Config, "%s must be positive", EnvHistoryCap)
	}
	return s, nil
}

// GetAsString returns the variable or defaultValue when it is unset.
func GetAsString(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// GetAsInt parses the variable as an integer.
func GetAsInt(key string, defaultValue int) (int, error) {
	v := GetAsString(key, "")
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrap(errors.Config, fmt.Sprintf("%s must be an integer", key), err)
	}
	return n, nil
}

// GetAsDuration parses the variable as a Go duration. A bare number is taken
// as seconds.
func GetAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := GetAsString(key, "")
	if v == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0, errors.Newf(errors.Config, "%s must be positive", key)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrap(errors.Config, fmt.Sprintf("%s must be a duration", key), err)
	}
	if d <= 0 {
		return 0, errors.Newf(errors.Config, "%s must be positive", key)
	}
	return d, nil
}
