package config

import (
	"os"
	"strconv"
	"time"
)

const (
	minAuditTimeout = 100 * time.Millisecond
	maxAuditTimeout = 10 * time.Minute
	minHTTPRetries  = 0
	maxHTTPRetries  = 10
	minHTTPBackoff  = time.Millisecond
	maxHTTPBackoff  = 30 * time.Second
	minHotGap       = 1
	maxHotGap       = 120960 // ~1 week at 5s ledger closes
)

// Config holds 12-factor environment configuration used by the CLI.
type Config struct {
	Network         string
	RPCURL          string
	HorizonURL      string
	StorageKey      string
	HotGapLedgers   int
	Timeout         time.Duration
	HTTPRetries     int
	HTTPBackoffBase time.Duration
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

func parseDurEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Load reads configuration from the environment, applying defaults and
// clamping values into safe bounds.
func Load() Config {
	return Config{
		Network:         env("SOROBAN_NETWORK", ""),
		RPCURL:          env("SOROBAN_RPC_URL", ""),
		HorizonURL:      env("HORIZON_URL", ""),
		StorageKey:      env("ADMIN_STORAGE_KEY", "admin"),
		HotGapLedgers:   clampInt(parseIntEnv("HOT_GAP_LEDGERS", 720), minHotGap, maxHotGap),
		Timeout:         clampDuration(parseDurEnv("AUDIT_TIMEOUT", 30*time.Second), minAuditTimeout, maxAuditTimeout),
		HTTPRetries:     clampInt(parseIntEnv("HTTP_RETRIES", 2), minHTTPRetries, maxHTTPRetries),
		HTTPBackoffBase: clampDuration(parseDurEnv("HTTP_BACKOFF_BASE", 100*time.Millisecond), minHTTPBackoff, maxHTTPBackoff),
	}
}
