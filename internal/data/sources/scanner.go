// Package sources reads project files from disk: the source scan that feeds
// the analyzer and the cached reads that back dependency fetches.
package sources

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"

	"polybuild/internal/core/errors"
	"polybuild/internal/engine/urlpath"
	"polybuild/internal/engine/vfs"
)

// Project is the subset of the project configuration the scanner needs.
type Project interface {
	Root() string
	IsSource(url string) bool
	IsExtraDependency(url string) bool
	ExcludedDir(rel string) bool
	ExcludedFile(rel string) bool
}

type Scanner struct {
	project Project
	fetcher *Fetcher
	log     *slog.Logger
}

func NewScanner(project Project, fetcher *Fetcher, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{project: project, fetcher: fetcher, log: logger}
}

// Scan sends every file matching a source glob to out, in lexical path
// order, and closes out when done.
func (s *Scanner) Scan(ctx context.Context, out chan<- *vfs.File) error {
	defer close(out)
	count := 0
	err := s.walk(ctx, func(path, url string) error {
		if !s.project.IsSource(url) {
			return nil
		}
		file, err := s.fetcher.Fetch(ctx, path)
		if err != nil {
			return err
		}
		select {
		case out <- file:
			count++
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return err
	}
	s.log.Debug("source scan complete", "root", s.project.Root(), "files", count)
	return nil
}

// ExtraDependencies returns the URLs of files matching an extra_dependencies
// glob. Source files are never extra dependencies.
func (s *Scanner) ExtraDependencies(ctx context.Context) ([]string, error) {
	var urls []string
	err := s.walk(ctx, func(_, url string) error {
		if s.project.IsExtraDependency(url) && !s.project.IsSource(url) {
			urls = append(urls, url)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

func (s *Scanner) walk(ctx context.Context, visit func(path, url string) error) error {
	root := s.project.Root()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		url := urlpath.URLFromPath(root, path)
		if d.IsDir() {
			if url != "" && s.project.ExcludedDir(url) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || s.project.ExcludedFile(url) {
			return nil
		}
		return visit(path, url)
	})
	if err != nil {
		if errors.IsCode(err, errors.CodeIO) || errors.IsCode(err, errors.CodeNotFound) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.AddContext(errors.Wrap(err, errors.CodeIO, "scan sources"), errors.CtxPath, root)
	}
	return nil
}
