package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvedPaths holds the absolute filesystem locations a build touches.
type ResolvedPaths struct {
	ProjectRoot string
	OutputDir   string
	Manifest    string
	HistoryDB   string
}

// ResolvePaths anchors cfg.Root at base (normally the directory of the config
// file) and resolves every other path against the project root.
func ResolvePaths(cfg *Config, base string) (ResolvedPaths, error) {
	if strings.TrimSpace(base) == "" {
		return ResolvedPaths{}, fmt.Errorf("base directory must not be empty")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return ResolvedPaths{}, err
	}
	root := ResolveRelative(abs, cfg.Root)
	return ResolvedPaths{
		ProjectRoot: root,
		OutputDir:   ResolveRelative(root, cfg.Build.OutputDir),
		Manifest:    ResolveRelative(root, cfg.Build.Manifest),
		HistoryDB:   ResolveRelative(root, cfg.History.Path),
	}, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, filepath.FromSlash(raw)))
}

// FindConfig walks up from start looking for polybuild.toml.
func FindConfig(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	dir := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	for {
		candidate := filepath.Join(dir, DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found in %s or any parent directory", DefaultFileName, abs)
		}
		dir = parent
	}
}
