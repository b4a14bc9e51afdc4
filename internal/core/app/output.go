package app

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"polybuild/internal/core/errors"
	"polybuild/internal/engine/analyzer"
	"polybuild/internal/engine/vfs"
	"polybuild/internal/shared/util"
)

// writeOutput mirrors file's position under root into outputDir.
func writeOutput(root, outputDir string, file *vfs.File) error {
	rel, err := filepath.Rel(root, file.Path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.AddContext(
			errors.New(errors.CodeValidationError, "output file lies outside the project root"),
			errors.CtxPath, file.Path,
		)
	}
	target := filepath.Join(outputDir, rel)
	if err := util.WriteFileAtomic(target, file.Contents, 0o644); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeIO, "write output"), errors.CtxPath, target)
	}
	return nil
}

func writeManifest(path string, index *analyzer.DepsIndex) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode dependency manifest")
	}
	data = append(data, '\n')
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeIO, "write dependency manifest"), errors.CtxPath, path)
	}
	return nil
}
