// Package history records finished builds and their dependency edges in
// SQLite, for trend listings and reverse-dependency queries across builds.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"polybuild/internal/core/ports"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

var _ ports.HistoryStore = (*Store)(nil)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts when watch-mode rebuilds overlap.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// SaveBuild inserts a build and its edges in one transaction. Saving the same
// ID twice replaces the earlier row.
func (s *Store) SaveBuild(ctx context.Context, record ports.BuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("build id must not be empty")
	}
	project := projectKey(record.Project)
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now().UTC()
	}

	return s.withRetry("save build", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM builds WHERE id = ?`, record.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO builds (
  id, project_key, started_at_utc, duration_ms, status, fragment_count, source_count,
  dependency_count, warning_count, error_count, message
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID,
			project,
			record.StartedAt.UTC().Format(time.RFC3339Nano),
			record.Duration.Milliseconds(),
			record.Status,
			record.Fragments,
			record.Sources,
			record.Dependencies,
			record.Warnings,
			record.Errors,
			record.Message,
		); err != nil {
			return err
		}

		if len(record.Edges) > 0 {
			stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO build_dependencies (build_id, fragment, dependency, kind) VALUES (?, ?, ?, ?)`)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, edge := range record.Edges {
				if _, err := stmt.ExecContext(ctx, record.ID, edge.Fragment, edge.Dependency, edge.Kind.String()); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	})
}

// RecentBuilds returns up to limit builds of project, newest first. A
// non-positive limit returns every build.
func (s *Store) RecentBuilds(ctx context.Context, project string, limit int) ([]ports.BuildRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
SELECT id, project_key, started_at_utc, duration_ms, status, fragment_count, source_count,
  dependency_count, warning_count, error_count, message
FROM builds
WHERE project_key = ?
ORDER BY started_at_utc DESC, id DESC`
	args := []any{projectKey(project)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows *sql.Rows
	err := s.withRetry("load builds", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	builds := make([]ports.BuildRecord, 0)
	for rows.Next() {
		var (
			startedRaw string
			durationMS int64
			record     ports.BuildRecord
		)
		if err := rows.Scan(
			&record.ID,
			&record.Project,
			&startedRaw,
			&durationMS,
			&record.Status,
			&record.Fragments,
			&record.Sources,
			&record.Dependencies,
			&record.Warnings,
			&record.Errors,
			&record.Message,
		); err != nil {
			return nil, fmt.Errorf("scan build row: %w", err)
		}
		started, err := time.Parse(time.RFC3339Nano, startedRaw)
		if err != nil {
			return nil, fmt.Errorf("parse build timestamp %q: %w", startedRaw, err)
		}
		record.StartedAt = started.UTC()
		record.Duration = time.Duration(durationMS) * time.Millisecond
		builds = append(builds, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build rows: %w", err)
	}
	return builds, nil
}

// Dependents returns the fragments that depended on dependency in the most
// recent successful build of project, sorted.
func (s *Store) Dependents(ctx context.Context, project, dependency string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
SELECT d.fragment
FROM build_dependencies d
WHERE d.dependency = ? AND d.build_id = (
  SELECT id FROM builds
  WHERE project_key = ? AND status = ?
  ORDER BY started_at_utc DESC, id DESC
  LIMIT 1
)
ORDER BY d.fragment ASC`

	var rows *sql.Rows
	err := s.withRetry("load dependents", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, query, dependency, projectKey(project), ports.BuildSucceeded)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fragments []string
	for rows.Next() {
		var fragment string
		if err := rows.Scan(&fragment); err != nil {
			return nil, fmt.Errorf("scan dependent row: %w", err)
		}
		fragments = append(fragments, fragment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependent rows: %w", err)
	}
	return fragments, nil
}

// Prune keeps the newest keep builds of project and deletes the rest along
// with their edges. It returns the number of builds removed.
func (s *Store) Prune(ctx context.Context, project string, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		return 0, fmt.Errorf("keep must be >= 0, got %d", keep)
	}

	var removed int64
	err := s.withRetry("prune builds", func() error {
		res, err := s.db.ExecContext(ctx, `
DELETE FROM builds
WHERE project_key = ? AND id NOT IN (
  SELECT id FROM builds WHERE project_key = ?
  ORDER BY started_at_utc DESC, id DESC
  LIMIT ?
)`, projectKey(project), projectKey(project), keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return int(removed), err
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func projectKey(project string) string {
	project = strings.TrimSpace(project)
	if project == "" {
		return "default"
	}
	return project
}
