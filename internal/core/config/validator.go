package config

import (
	"fmt"
	"strings"

	"polybuild/internal/engine/parser"
)

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateProject(cfg *Config) error {
	if cfg.Entrypoint == "" {
		return fmt.Errorf("entrypoint must not be empty")
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("sources must list at least one glob")
	}
	return nil
}

func validateGlobs(cfg *Config) error {
	groups := []struct {
		label    string
		patterns []string
	}{
		{"sources", cfg.Sources},
		{"extra_dependencies", cfg.ExtraDependencies},
		{"exclude.dirs", cfg.Exclude.Dirs},
		{"exclude.files", cfg.Exclude.Files},
	}
	for _, g := range groups {
		if _, err := CompileGlobs(g.patterns, g.label); err != nil {
			return err
		}
	}
	return nil
}

func validateBuild(cfg *Config) error {
	if cfg.Build.FetchConcurrency < 1 {
		return fmt.Errorf("build.fetch_concurrency must be >= 1, got %d", cfg.Build.FetchConcurrency)
	}
	if cfg.Build.FetchRate < 0 {
		return fmt.Errorf("build.fetch_rate must be >= 0")
	}
	if cfg.Build.Timeout < 0 {
		return fmt.Errorf("build.timeout must be >= 0")
	}
	if cfg.Cache.Files < 0 {
		return fmt.Errorf("cache.files must be >= 0")
	}
	return nil
}

func validateHistory(cfg *Config) error {
	if cfg.History.Keep < 0 {
		return fmt.Errorf("history.keep must be >= 0, got %d", cfg.History.Keep)
	}
	if cfg.History.Enabled && strings.TrimSpace(cfg.History.Path) == "" {
		return fmt.Errorf("history.path must not be empty when history is enabled")
	}
	return nil
}

func validateLanguages(cfg *Config) error {
	for language, settings := range cfg.Languages {
		if strings.TrimSpace(language) == "" {
			return fmt.Errorf("languages key must not be empty")
		}
		for _, ext := range settings.Extensions {
			if strings.TrimSpace(ext) == "" {
				return fmt.Errorf("languages.%s.extensions must not include empty values", language)
			}
		}
	}
	if _, err := parser.BuildLanguageRegistry(cfg.LanguageOverrides()); err != nil {
		return fmt.Errorf("languages: %w", err)
	}
	return nil
}

func validateConfigDependencies(cfg *Config) []error {
	var errs []error
	if cfg.Observability.EnableTracing && cfg.Observability.OTLPEndpoint == "" {
		errs = append(errs, fmt.Errorf("observability.otlp_endpoint is required when tracing is enabled"))
	}
	return errs
}

// Validate returns every problem with cfg, in section order.
func Validate(cfg *Config) []error {
	var errs []error
	for _, check := range []func(*Config) error{
		validateVersion,
		validateProject,
		validateGlobs,
		validateBuild,
		validateHistory,
		validateLanguages,
	} {
		if err := check(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, validateConfigDependencies(cfg)...)
	return errs
}
