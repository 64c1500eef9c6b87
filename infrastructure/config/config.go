// Package config loads the recognized configuration options from spec §6,
// in the teacher's GetEnv-with-default style. The teacher's Marble-secret
// indirection is dropped (see DESIGN.md): this engine has no TEE component,
// so there is no secret store beyond the process environment.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds every recognized option from spec §6.
type Config struct {
	PaymentPerCheckMinorUnits int64
	CooldownSeconds           int
	AlertThresholdDefault     int
	RecoveryThresholdDefault  int
	ProbeTimeoutMsDefault     int
	IntervalFloorSeconds      int
	ExecutorConcurrency       int
	ProcessorShards           int
	EmailEnabled              bool

	DatabaseURL  string
	RedisAddr    string
	HTTPAddr     string
	KnownRegions []string
}

// Cooldown returns CooldownSeconds as a time.Duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// ProbeTimeout returns ProbeTimeoutMsDefault as a time.Duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMsDefault) * time.Millisecond
}

// FromEnv loads configuration from the process environment, applying the
// defaults named in spec §6.
func FromEnv() Config {
	cpu := runtime.NumCPU()
	defaultConcurrency := 64
	if 2*cpu > defaultConcurrency {
		defaultConcurrency = 2 * cpu
	}

	regions := GetEnv("MONITOR_KNOWN_REGIONS", "us-east,us-west,eu-west,ap-south")

	return Config{
		PaymentPerCheckMinorUnits: GetEnvInt64("MONITOR_PAYMENT_PER_CHECK_MINOR_UNITS", 5),
		CooldownSeconds:           GetEnvInt("MONITOR_COOLDOWN_SECONDS", 300),
		AlertThresholdDefault:     GetEnvInt("MONITOR_ALERT_THRESHOLD_DEFAULT", 3),
		RecoveryThresholdDefault:  GetEnvInt("MONITOR_RECOVERY_THRESHOLD_DEFAULT", 1),
		ProbeTimeoutMsDefault:     GetEnvInt("MONITOR_PROBE_TIMEOUT_MS_DEFAULT", 30000),
		IntervalFloorSeconds:      GetEnvInt("MONITOR_INTERVAL_FLOOR_SECONDS", 60),
		ExecutorConcurrency:       GetEnvInt("MONITOR_EXECUTOR_CONCURRENCY", defaultConcurrency),
		ProcessorShards:           GetEnvInt("MONITOR_PROCESSOR_SHARDS", 16),
		EmailEnabled:              GetEnvBool("MONITOR_EMAIL_ENABLED", true),
		DatabaseURL:               GetEnv("MONITOR_DATABASE_URL", ""),
		RedisAddr:                 GetEnv("MONITOR_REDIS_ADDR", "localhost:6379"),
		HTTPAddr:                  GetEnv("MONITOR_HTTP_ADDR", ":8090"),
		KnownRegions:              splitCSV(regions),
	}
}

// KnownRegionSet returns the configured regions as a membership set, used
// by Target.Validate (spec §3: "regions ⊆ known-regions").
func (c Config) KnownRegionSet() map[string]bool {
	set := make(map[string]bool, len(c.KnownRegions))
	for _, r := range c.KnownRegions {
		set[r] = true
	}
	return set
}

// GetEnv retrieves an environment variable with a default fallback.
func GetEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvInt retrieves an integer environment variable with a default.
func GetEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetEnvInt64 retrieves an int64 environment variable with a default.
func GetEnvInt64(key string, defaultValue int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetEnvBool retrieves a boolean environment variable, accepting
// "true"/"1"/"yes"/"y" (case-insensitive) as true.
func GetEnvBool(key string, defaultValue bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return defaultValue
	}
	switch v {
	case "true", "1", "yes", "y":
		return true
	case "false", "0", "no", "n":
		return false
	}
	return defaultValue
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
