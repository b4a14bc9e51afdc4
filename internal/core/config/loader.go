package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const DefaultFileName = "polybuild.toml"

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// Parse decodes, defaults, normalizes and validates a TOML document.
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	normalize(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errs[0]
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if strings.TrimSpace(cfg.Root) == "" {
		cfg.Root = "."
	}
	if cfg.Exclude.Dirs == nil {
		cfg.Exclude.Dirs = []string{".git", "node_modules"}
	}

	if strings.TrimSpace(cfg.Build.OutputDir) == "" {
		cfg.Build.OutputDir = "build"
	}
	if strings.TrimSpace(cfg.Build.Manifest) == "" {
		cfg.Build.Manifest = filepath.ToSlash(filepath.Join(cfg.Build.OutputDir, "polybuild-deps.json"))
	}
	if cfg.Build.Timeout == 0 {
		cfg.Build.Timeout = 2 * time.Minute
	}
	if cfg.Build.FetchConcurrency == 0 {
		cfg.Build.FetchConcurrency = 8
	}
	if cfg.Build.FetchRate > 0 && cfg.Build.FetchBurst == 0 {
		cfg.Build.FetchBurst = 1
	}

	if cfg.Cache.Files == 0 {
		cfg.Cache.Files = 512
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = ".polybuild/history.db"
	}
	if cfg.History.Keep == 0 {
		cfg.History.Keep = 50
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
}

// normalize trims patterns and converts them to forward slashes, since globs
// are matched against root-relative URLs.
func normalize(cfg *Config) {
	cfg.Entrypoint = normalizeURLPath(cfg.Entrypoint)
	cfg.Shell = normalizeURLPath(cfg.Shell)
	cfg.Fragments = normalizeList(cfg.Fragments)
	cfg.Sources = normalizeList(cfg.Sources)
	cfg.ExtraDependencies = normalizeList(cfg.ExtraDependencies)
	cfg.Exclude.Dirs = normalizeList(cfg.Exclude.Dirs)
	cfg.Exclude.Files = normalizeList(cfg.Exclude.Files)
	cfg.Observability.MetricsAddress = strings.TrimSpace(cfg.Observability.MetricsAddress)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)
}

func normalizeURLPath(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "\\", "/"))
	value = strings.TrimPrefix(value, "./")
	return strings.TrimLeft(value, "/")
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = normalizeURLPath(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
