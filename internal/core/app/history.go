package app

import (
	"context"
	"log/slog"

	"polybuild/internal/core/ports"
)

func (b *Builder) recordHistory(ctx context.Context, setup *buildSetup, result *BuildResult, log *slog.Logger) {
	if b.history == nil {
		return
	}
	record := ports.BuildRecord{
		ID:           result.ID,
		Project:      setup.project.Name(),
		StartedAt:    result.StartedAt,
		Duration:     result.Duration,
		Status:       result.Status,
		Fragments:    result.Fragments,
		Sources:      result.Sources,
		Dependencies: result.Dependencies,
	}
	for _, w := range result.Warnings {
		if w.Severity == ports.SeverityError {
			record.Errors++
		} else if w.Severity == ports.SeverityWarning {
			record.Warnings++
		}
	}
	if result.Err != nil {
		record.Message = result.Err.Error()
	}
	if result.Index != nil {
		record.Edges = result.Index.Edges()
	}

	// The build context may already be cancelled; history is still written.
	ctx = context.WithoutCancel(ctx)
	if err := b.history.SaveBuild(ctx, record); err != nil {
		log.Warn("failed to save build history", "error", err)
		return
	}
	if keep := setup.cfg.History.Keep; keep > 0 {
		removed, err := b.history.Prune(ctx, record.Project, keep)
		if err != nil {
			log.Warn("failed to prune build history", "error", err)
		} else if removed > 0 {
			log.Debug("pruned build history", "removed", removed)
		}
	}
}

// RecentBuilds lists the latest builds of the current project.
func (b *Builder) RecentBuilds(ctx context.Context, limit int) ([]ports.BuildRecord, error) {
	if b.history == nil {
		return nil, nil
	}
	return b.history.RecentBuilds(ctx, b.Project().Name(), limit)
}

// Dependents lists the fragments that referenced url in the latest
// successful build of the current project.
func (b *Builder) Dependents(ctx context.Context, url string) ([]string, error) {
	if b.history == nil {
		return nil, nil
	}
	return b.history.Dependents(ctx, b.Project().Name(), url)
}
