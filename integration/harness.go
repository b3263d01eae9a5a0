//go:build integration

package integration

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// gitRun executes one git command and fails the test on any error.
func gitRun(t *testing.T, args ...string) {
	t.Helper()
	if out, err := exec.Command("git", args...).CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

// newTemplateRepo initializes a git repository holding the given files on
// branch main and returns its path. The path doubles as the clone URL.
func newTemplateRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "template")
	gitRun(t, "init", "-b", "main", dir)
	gitRun(t, "-C", dir, "config", "user.email", "test@test.com")
	gitRun(t, "-C", dir, "config", "user.name", "Test")

	for rel, content := range files {
		writeFile(t, filepath.Join(dir, filepath.FromSlash(rel)), content)
	}
	gitRun(t, "-C", dir, "add", "--all")
	gitRun(t, "-C", dir, "commit", "-m", "template content")
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// scriptedAsker answers prompts from a fixed script and records every
// question it saw.
type scriptedAsker struct {
	answers   []bool
	questions []string
}

func (a *scriptedAsker) Confirm(question string) (bool, error) {
	a.questions = append(a.questions, question)
	if len(a.answers) == 0 {
		return false, fmt.Errorf("unexpected question: %s", question)
	}
	answer := a.answers[0]
	a.answers = a.answers[1:]
	return answer, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
