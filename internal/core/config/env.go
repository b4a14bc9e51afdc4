package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: POLYBUILD_[SECTION]_[KEY] (e.g., POLYBUILD_BUILD_OUTPUT_DIR).
func ApplyEnvOverrides(cfg *Config) {
	setEnvString(&cfg.Root, "POLYBUILD_ROOT")
	setEnvString(&cfg.Entrypoint, "POLYBUILD_ENTRYPOINT")
	setEnvString(&cfg.Shell, "POLYBUILD_SHELL")

	// Build
	setEnvString(&cfg.Build.OutputDir, "POLYBUILD_BUILD_OUTPUT_DIR")
	setEnvString(&cfg.Build.Manifest, "POLYBUILD_BUILD_MANIFEST")
	setEnvBoolPtr(&cfg.Build.SplitScripts, "POLYBUILD_BUILD_SPLIT_SCRIPTS")
	setEnvDuration(&cfg.Build.Timeout, "POLYBUILD_BUILD_TIMEOUT")
	setEnvInt(&cfg.Build.FetchConcurrency, "POLYBUILD_BUILD_FETCH_CONCURRENCY")
	setEnvFloat64(&cfg.Build.FetchRate, "POLYBUILD_BUILD_FETCH_RATE")
	setEnvInt(&cfg.Build.FetchBurst, "POLYBUILD_BUILD_FETCH_BURST")

	// Cache
	setEnvInt(&cfg.Cache.Files, "POLYBUILD_CACHE_FILES")

	// History
	setEnvBool(&cfg.History.Enabled, "POLYBUILD_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "POLYBUILD_HISTORY_PATH")
	setEnvInt(&cfg.History.Keep, "POLYBUILD_HISTORY_KEEP")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "POLYBUILD_WATCH_DEBOUNCE")

	// Observability
	setEnvString(&cfg.Observability.MetricsAddress, "POLYBUILD_OBSERVABILITY_METRICS_ADDRESS")
	setEnvString(&cfg.Observability.OTLPEndpoint, "POLYBUILD_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "POLYBUILD_OBSERVABILITY_ENABLE_TRACING")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		log.Printf("Applying env override: %s=%s", key, val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = &b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = d
		}
	}
}
