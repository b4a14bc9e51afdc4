package config

import (
	"path"
	"path/filepath"
	"strings"

	"polybuild/internal/core/ports"
	"polybuild/internal/shared/util"

	"github.com/gobwas/glob"
)

var _ ports.ProjectConfig = (*Project)(nil)

// Project is the compiled, read-only view of a Config used during a build.
type Project struct {
	paths        ResolvedPaths
	entrypoint   string
	shell        string
	fragments    []string
	fragmentSet  map[string]bool
	sources      []glob.Glob
	extras       []glob.Glob
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	// generated holds root-relative directories the build itself writes.
	generated []string
	manifest  string
}

// Project compiles the configuration against base, the directory the config
// file was loaded from.
func (c *Config) Project(base string) (*Project, error) {
	paths, err := ResolvePaths(c, base)
	if err != nil {
		return nil, err
	}
	sources, err := CompileGlobs(c.Sources, "sources")
	if err != nil {
		return nil, err
	}
	extras, err := CompileGlobs(c.ExtraDependencies, "extra_dependencies")
	if err != nil {
		return nil, err
	}
	excludeDirs, err := CompileGlobs(c.Exclude.Dirs, "exclude.dirs")
	if err != nil {
		return nil, err
	}
	excludeFiles, err := CompileGlobs(c.Exclude.Files, "exclude.files")
	if err != nil {
		return nil, err
	}

	p := &Project{
		paths:        paths,
		entrypoint:   c.Entrypoint,
		shell:        c.Shell,
		fragmentSet:  make(map[string]bool),
		sources:      sources,
		extras:       extras,
		excludeDirs:  excludeDirs,
		excludeFiles: excludeFiles,
	}
	for _, f := range append([]string{c.Entrypoint, c.Shell}, c.Fragments...) {
		if f == "" || p.fragmentSet[f] {
			continue
		}
		p.fragmentSet[f] = true
		p.fragments = append(p.fragments, f)
	}
	for _, dir := range []string{paths.OutputDir, filepath.Dir(paths.HistoryDB)} {
		rel, err := filepath.Rel(paths.ProjectRoot, dir)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		p.generated = append(p.generated, filepath.ToSlash(rel))
	}
	if rel, err := filepath.Rel(paths.ProjectRoot, paths.Manifest); err == nil && !strings.HasPrefix(rel, "..") {
		p.manifest = filepath.ToSlash(rel)
	}
	return p, nil
}

func (p *Project) Root() string        { return p.paths.ProjectRoot }
func (p *Project) Paths() ResolvedPaths { return p.paths }
func (p *Project) Entrypoint() string  { return p.entrypoint }
func (p *Project) Shell() string       { return p.shell }

// Name identifies the project in build history.
func (p *Project) Name() string { return filepath.Base(p.paths.ProjectRoot) }

// Fragments returns the entrypoint, the shell and the configured fragments as
// root-relative URLs, without duplicates.
func (p *Project) Fragments() []string {
	return append([]string(nil), p.fragments...)
}

func (p *Project) IsFragment(url string) bool { return p.fragmentSet[url] }

func (p *Project) IsSource(url string) bool { return matchAny(p.sources, url) }

func (p *Project) IsExtraDependency(url string) bool { return matchAny(p.extras, url) }

// ExcludedDir reports whether a root-relative directory is skipped. The build
// output directory and the history database directory are always skipped.
func (p *Project) ExcludedDir(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, dir := range p.generated {
		if util.HasPathPrefix(rel, dir) {
			return true
		}
	}
	return matchAny(p.excludeDirs, path.Base(rel))
}

// ExcludedFile reports whether a root-relative file is skipped. The
// dependency manifest is always skipped.
func (p *Project) ExcludedFile(rel string) bool {
	rel = filepath.ToSlash(rel)
	if p.manifest != "" && rel == p.manifest {
		return true
	}
	return matchAny(p.excludeFiles, path.Base(rel))
}
