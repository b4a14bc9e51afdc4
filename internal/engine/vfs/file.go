// Package vfs holds the file record passed between build stages.
package vfs

import "path/filepath"

// File is a build file: an absolute path and its contents. Stages treat
// Contents as immutable; a stage that changes content emits a new File.
type File struct {
	Path     string
	Contents []byte
}

func NewFile(path string, contents []byte) *File {
	return &File{Path: filepath.Clean(path), Contents: contents}
}

// WithContents returns a copy of f carrying new contents.
func (f *File) WithContents(contents []byte) *File {
	return &File{Path: f.Path, Contents: contents}
}

func (f *File) String() string {
	return string(f.Contents)
}

// Range is a half-open byte range [Start, End) inside a file's contents.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int {
	return r.End - r.Start
}
