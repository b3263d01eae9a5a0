package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/core-unit-bioinformatics/templsync/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSetupLogger(t *testing.T) {
	// Save original globals.
	origLevel := logLevel
	origFormat := logFormat
	t.Cleanup(func() {
		logLevel = origLevel
		logFormat = origFormat
	})

	for _, tc := range []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "debug/text", logLevel: "debug", logFormat: "text"},
		{name: "info/json", logLevel: "info", logFormat: "json"},
		{name: "warn/text", logLevel: "warn", logFormat: "text"},
		{name: "error/text", logLevel: "error", logFormat: "text"},
		{name: "unknown/text", logLevel: "unknown", logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.logLevel
			logFormat = tc.logFormat

			logger := setupLogger()
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}
		})
	}
}

func TestLoadConfig_WithExplicitPath(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	configContent := []byte(`metadata:
  url: "https://git.example.com/fork-of-metadata.git"
git:
  timeout_seconds: 10
`)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, configContent, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfgFile = cfgPath
	cfg, err := loadConfig(testLogger())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	if cfg.Metadata.URL != "https://git.example.com/fork-of-metadata.git" {
		t.Errorf("metadata.url = %q, want the override", cfg.Metadata.URL)
	}
	if cfg.Git.TimeoutSeconds != 10 {
		t.Errorf("git.timeout_seconds = %d, want 10", cfg.Git.TimeoutSeconds)
	}
	// Untouched fields come from the built-in defaults.
	if cfg.Workflow.URL == "" || cfg.Metadata.MirrorName == "" {
		t.Error("defaults were not applied to unset fields")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = filepath.Join(t.TempDir(), "nonexistent.yaml")

	_, err := loadConfig(testLogger())
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoadConfig_BuiltinDefaults(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	// No --config and nothing at the default location.
	cfgFile = ""
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig(testLogger())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Metadata.URL == "" || cfg.Workflow.URL == "" {
		t.Error("built-in defaults missing template URLs")
	}
}

func TestLoadConfig_DefaultPathPickedUp(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = ""
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfgDir := filepath.Join(home, ".config", "templsync")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configContent := []byte("git:\n  default_ref: trunk\n")
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), configContent, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(testLogger())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Git.DefaultRef != "trunk" {
		t.Errorf("git.default_ref = %q, want the file at the default location", cfg.Git.DefaultRef)
	}
}

func TestResolveSource(t *testing.T) {
	origProject := projectDir
	origRefRepo := refRepo
	origBranch := branch
	t.Cleanup(func() {
		projectDir = origProject
		refRepo = origRefRepo
		branch = origBranch
	})

	tmpDir := t.TempDir()
	projectDir = filepath.Join(tmpDir, "my-project")

	cfg := config.Default()
	tpl := cfg.Metadata

	refRepo, branch = "", ""
	src, absProject, err := resolveSource(tpl, cfg.Git)
	if err != nil {
		t.Fatalf("resolveSource returned error: %v", err)
	}
	if absProject != projectDir {
		t.Errorf("project dir = %q, want %q", absProject, projectDir)
	}
	if src.URL != tpl.URL {
		t.Errorf("url = %q, want the configured template", src.URL)
	}
	if src.Revision != cfg.Git.DefaultRef || src.DefaultRef != cfg.Git.DefaultRef {
		t.Errorf("revision/default = %q/%q, want the configured ref", src.Revision, src.DefaultRef)
	}
	if want := filepath.Join(tmpDir, tpl.MirrorName); src.MirrorDir != want {
		t.Errorf("mirror dir = %q, want %q (parallel to the project)", src.MirrorDir, want)
	}

	// Command line overrides win.
	refRepo = "https://git.example.com/fork.git"
	branch = "v1.2.3"
	src, _, err = resolveSource(tpl, cfg.Git)
	if err != nil {
		t.Fatalf("resolveSource returned error: %v", err)
	}
	if src.URL != refRepo {
		t.Errorf("url = %q, want the --ref-repo override", src.URL)
	}
	if src.Revision != "v1.2.3" {
		t.Errorf("revision = %q, want the --branch override", src.Revision)
	}
	if src.DefaultRef != cfg.Git.DefaultRef {
		t.Errorf("default ref = %q, must not follow --branch", src.DefaultRef)
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestVersionCmd(t *testing.T) {
	// versionCmd.Run simply prints version info; should not panic.
	versionCmd.Run(versionCmd, []string{})
}
