package config

import (
	"time"

	"polybuild/internal/engine/parser"
)

type Config struct {
	Version           int                 `toml:"version"`
	Root              string              `toml:"root"`
	Entrypoint        string              `toml:"entrypoint"`
	Shell             string              `toml:"shell"`
	Fragments         []string            `toml:"fragments"`
	Sources           []string            `toml:"sources"`
	ExtraDependencies []string            `toml:"extra_dependencies"`
	Exclude           Exclude             `toml:"exclude"`
	Languages         map[string]Language `toml:"languages"`
	Build             Build               `toml:"build"`
	Cache             Cache               `toml:"cache"`
	History           History             `toml:"history"`
	Watch             Watch               `toml:"watch"`
	Observability     Observability       `toml:"observability"`
}

// Exclude patterns match directory and file base names during source scans
// and watching.
type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Language struct {
	Enabled    *bool    `toml:"enabled"`
	Extensions []string `toml:"extensions"`
}

type Build struct {
	OutputDir        string        `toml:"output_dir"`
	Manifest         string        `toml:"manifest"`
	SplitScripts     *bool         `toml:"split_scripts"`
	Timeout          time.Duration `toml:"timeout"`
	FetchConcurrency int           `toml:"fetch_concurrency"`
	// FetchRate limits dependency reads per second. Zero means unlimited.
	FetchRate  float64 `toml:"fetch_rate"`
	FetchBurst int     `toml:"fetch_burst"`
}

type Cache struct {
	Files int `toml:"files"`
}

type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
	Keep    int    `toml:"keep"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

type Observability struct {
	MetricsAddress string `toml:"metrics_address"`
	OTLPEndpoint   string `toml:"otlp_endpoint"`
	EnableTracing  bool   `toml:"enable_tracing"`
}

func (b Build) SplitEnabled() bool {
	if b.SplitScripts == nil {
		return true
	}
	return *b.SplitScripts
}

// LanguageOverrides converts [languages.<id>] tables for the grammar registry.
func (c *Config) LanguageOverrides() map[string]parser.LanguageOverride {
	if len(c.Languages) == 0 {
		return nil
	}
	out := make(map[string]parser.LanguageOverride, len(c.Languages))
	for id, lang := range c.Languages {
		out[id] = parser.LanguageOverride{Enabled: lang.Enabled, Extensions: lang.Extensions}
	}
	return out
}
