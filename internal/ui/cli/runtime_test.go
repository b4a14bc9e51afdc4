package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"polybuild/internal/core/app"
	"polybuild/internal/core/config"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func minimalProject(t *testing.T, extraConfig string) string {
	return writeProject(t, map[string]string{
		config.DefaultFileName: "entrypoint = \"index.html\"\nsources = [\"index.html\", \"src/**\"]\n" + extraConfig,
		"index.html":           `<link rel="import" href="src/view.html"><script>console.log("boot");</script>`,
		"src/view.html":        `<link rel="import" href="../lib/widget.html"><div>view</div>`,
		"lib/widget.html":      `<div>widget</div>`,
	})
}

func TestParseOptions(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseOptions([]string{"-c", "p.toml", "--watch", "--history", "5", "--no-split", "-v"}, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.configPath != "p.toml" || !opts.watch || opts.history != 5 || !opts.noSplit || !opts.verbose {
		t.Fatalf("unexpected options: %+v", opts)
	}

	if _, err := parseOptions([]string{"--bogus"}, &stderr); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"--version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "polybuild v"+versionString) {
		t.Fatalf("unexpected version output: %q", stdout.String())
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"--bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestRun_MissingConfigFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	missing := filepath.Join(t.TempDir(), "nope.toml")
	if code := Run([]string{"--config", missing}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRun_BuildsProject(t *testing.T) {
	root := minimalProject(t, "")
	var stdout, stderr bytes.Buffer
	code := Run([]string{"--config", filepath.Join(root, config.DefaultFileName)}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d; stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "build succeeded") {
		t.Fatalf("expected summary on stdout, got %q", stdout.String())
	}
	for _, rel := range []string{"index.html", "src/view.html", "lib/widget.html"} {
		if _, err := os.Stat(filepath.Join(root, "build", filepath.FromSlash(rel))); err != nil {
			t.Fatalf("expected output %s: %v", rel, err)
		}
	}
}

func TestRun_NoSplitKeepsInlineScripts(t *testing.T) {
	root := minimalProject(t, "")
	var stdout, stderr bytes.Buffer
	code := Run([]string{"--config", filepath.Join(root, config.DefaultFileName), "--no-split"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d; stderr: %s", code, stderr.String())
	}
	data, err := os.ReadFile(filepath.Join(root, "build", "index.html"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), `console.log("boot");`) {
		t.Fatalf("expected inline script to be kept, got %q", string(data))
	}
}

func TestRun_HistoryQueriesRequireHistory(t *testing.T) {
	root := minimalProject(t, "")
	var stdout, stderr bytes.Buffer
	code := Run([]string{"--config", filepath.Join(root, config.DefaultFileName), "--history", "3"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRun_HistoryAndDependents(t *testing.T) {
	root := minimalProject(t, "\n[history]\nenabled = true\n")
	cfgPath := filepath.Join(root, config.DefaultFileName)

	var stdout, stderr bytes.Buffer
	if code := Run([]string{"--config", cfgPath}, &stdout, &stderr); code != 0 {
		t.Fatalf("build failed with %d; stderr: %s", code, stderr.String())
	}

	stdout.Reset()
	if code := Run([]string{"--config", cfgPath, "--history", "5", "--json"}, &stdout, &stderr); code != 0 {
		t.Fatalf("history query failed with %d; stderr: %s", code, stderr.String())
	}
	var builds []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &builds); err != nil {
		t.Fatalf("decode history json: %v; output %q", err, stdout.String())
	}
	if len(builds) != 1 {
		t.Fatalf("expected one recorded build, got %d", len(builds))
	}

	stdout.Reset()
	if code := Run([]string{"--config", cfgPath, "--dependents", "lib/widget.html"}, &stdout, &stderr); code != 0 {
		t.Fatalf("dependents query failed with %d; stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "index.html") {
		t.Fatalf("expected index.html among dependents, got %q", stdout.String())
	}
}

type staticHealth app.HealthStatus

func (s staticHealth) Health() app.HealthStatus { return app.HealthStatus(s) }

func TestObservabilityServer_Health(t *testing.T) {
	tests := []struct {
		name   string
		status app.HealthStatus
		code   int
	}{
		{name: "up", status: app.HealthStatus{Status: app.HealthUp}, code: http.StatusOK},
		{name: "degraded", status: app.HealthStatus{Status: app.HealthDegraded, Error: "boom"}, code: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewObservabilityServer("127.0.0.1:0", staticHealth(tt.status))
			rec := httptest.NewRecorder()
			server.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.code {
				t.Fatalf("expected status %d, got %d", tt.code, rec.Code)
			}
			var got app.HealthStatus
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Status != tt.status.Status {
				t.Fatalf("expected %q, got %q", tt.status.Status, got.Status)
			}
		})
	}
}

func TestObservabilityServer_Metrics(t *testing.T) {
	server := NewObservabilityServer("127.0.0.1:0", staticHealth{Status: app.HealthUp})
	rec := httptest.NewRecorder()
	server.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatal("expected default registry metrics")
	}
}
