package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/core-unit-bioinformatics/templsync/internal/syncerr"
)

// Client provides the git operations the sync engine needs.
type Client interface {
	// EnsureMirror clones the template repository into mirrorDir or
	// refreshes an existing mirror, checks out rev and returns the
	// resolved commit hash.
	EnsureMirror(ctx context.Context, url, rev, mirrorDir string) (string, error)
	// VerifyMirror reports whether mirrorDir holds a usable git checkout,
	// without touching the network.
	VerifyMirror(mirrorDir string) error
	// Reset moves an existing mirror back to rev, discarding local state.
	Reset(ctx context.Context, mirrorDir, rev string) error
}

// ShellClient implements Client by shelling out to the git command.
type ShellClient struct {
	sshKeyFile     string
	httpsTokenFile string
	timeout        time.Duration
}

// NewShellClient creates a git client that uses the git command. Remote
// operations are bounded by timeout; zero means no bound.
func NewShellClient(sshKeyFile, httpsTokenFile string, timeout time.Duration) *ShellClient {
	return &ShellClient{
		sshKeyFile:     sshKeyFile,
		httpsTokenFile: httpsTokenFile,
		timeout:        timeout,
	}
}

// EnsureMirror clones or fetches the repository and checks out rev.
func (c *ShellClient) EnsureMirror(ctx context.Context, url, rev, mirrorDir string) (string, error) {
	exists, err := c.hasCheckout(mirrorDir)
	if err != nil {
		return "", err
	}

	// Remote operations get the timeout; local ones below do not.
	remoteCtx, cancel := c.remoteContext(ctx)
	defer cancel()

	if !exists {
		if err := os.MkdirAll(filepath.Dir(mirrorDir), 0755); err != nil {
			return "", syncerr.IO(mirrorDir, fmt.Errorf("failed to create mirror parent directory: %w", err))
		}

		cmd := exec.CommandContext(remoteCtx, "git", "clone", "--no-checkout", url, mirrorDir)
		if err := c.configureAuth(cmd, url); err != nil {
			return "", err
		}
		if out, err := c.runCommand(cmd); err != nil {
			return "", fmt.Errorf("git clone failed: %w", c.classify(remoteCtx, url, rev, out, err))
		}
	} else {
		cmd := exec.CommandContext(remoteCtx, "git", "-C", mirrorDir, "fetch", "--tags", "origin")
		if err := c.configureAuth(cmd, url); err != nil {
			return "", err
		}
		if out, err := c.runCommand(cmd); err != nil {
			return "", fmt.Errorf("git fetch failed: %w", c.classify(remoteCtx, url, rev, out, err))
		}
	}

	// Checkout the specified rev.
	// Strategy:
	// 1. Try direct checkout (works for local branches, tags, commit hashes)
	// 2. If that fails, try as a remote branch (origin/rev)
	cmd := exec.CommandContext(ctx, "git", "-C", mirrorDir, "checkout", "-f", rev)
	if out, err := c.runCommand(cmd); err != nil {
		remoteRef := "origin/" + rev
		cmd = exec.CommandContext(ctx, "git", "-C", mirrorDir, "checkout", "-f", remoteRef)
		if _, err2 := c.runCommand(cmd); err2 != nil {
			return "", fmt.Errorf("git checkout failed: %w", c.classify(ctx, url, rev, out, err))
		}
	}

	// For existing mirrors, the local branch may be stale after fetch.
	// Reset to the remote tracking branch to pick up new commits.
	// Silently ignored for tags and hashes.
	if exists {
		resetCmd := exec.CommandContext(ctx, "git", "-C", mirrorDir, "reset", "--hard", "origin/"+rev)
		_, _ = c.runCommand(resetCmd)
	}

	// Report the resolved commit.
	cmd = exec.CommandContext(ctx, "git", "-C", mirrorDir, "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// VerifyMirror checks that mirrorDir holds a git checkout.
func (c *ShellClient) VerifyMirror(mirrorDir string) error {
	info, err := os.Stat(mirrorDir)
	if err != nil {
		if os.IsNotExist(err) {
			return syncerr.MirrorMissing(mirrorDir)
		}
		return syncerr.IO(mirrorDir, err)
	}
	if !info.IsDir() {
		return syncerr.InvalidMirror(mirrorDir, errors.New("not a directory"))
	}
	if _, err := os.Stat(filepath.Join(mirrorDir, ".git")); err != nil {
		return syncerr.InvalidMirror(mirrorDir, errors.New("no .git directory"))
	}
	return nil
}

// Reset force-checks-out rev so the next run starts the mirror from a known
// branch instead of a detached or stale head.
func (c *ShellClient) Reset(ctx context.Context, mirrorDir, rev string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", mirrorDir, "checkout", "-f", rev)
	if _, err := c.runCommand(cmd); err != nil {
		return fmt.Errorf("git checkout %q failed: %w", rev, err)
	}
	return nil
}

// hasCheckout reports whether mirrorDir already holds a checkout. A
// non-empty directory without one is refused rather than cloned over.
func (c *ShellClient) hasCheckout(mirrorDir string) (bool, error) {
	if _, err := os.Stat(filepath.Join(mirrorDir, ".git")); err == nil {
		return true, nil
	}

	info, err := os.Stat(mirrorDir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, syncerr.IO(mirrorDir, err)
	}
	if !info.IsDir() {
		return false, syncerr.InvalidMirror(mirrorDir, errors.New("not a directory"))
	}

	entries, err := os.ReadDir(mirrorDir)
	if err != nil {
		return false, syncerr.IO(mirrorDir, err)
	}
	if len(entries) > 0 {
		return false, syncerr.InvalidMirror(mirrorDir, errors.New("exists but is not a git checkout"))
	}
	return false, nil
}

// classify maps a failed git invocation onto the error taxonomy. Git
// reports unusable remotes and unknown revisions on stderr with fatal: or
// error: prefixes; a dead deadline means the remote never answered.
func (c *ShellClient) classify(ctx context.Context, url, rev, output string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return syncerr.ReferenceUnreachable(url, err)
	}

	out := strings.ToLower(output)
	switch {
	case strings.Contains(out, "could not resolve host"),
		strings.Contains(out, "unable to access"),
		strings.Contains(out, "connection refused"),
		strings.Contains(out, "connection timed out"):
		return syncerr.ReferenceUnreachable(url, err)
	case strings.Contains(out, "fatal:"), strings.Contains(out, "error:"):
		return syncerr.ReferenceNotFound(url, rev, err)
	default:
		return err
	}
}

// remoteContext bounds remote operations by the configured timeout.
func (c *ShellClient) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// configureAuth sets up authentication for git operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// SSH authentication
	if c.sshKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		// Use GIT_SSH_COMMAND to specify the SSH key.
		// The path is shell-quoted to prevent injection via crafted filenames.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	// HTTPS authentication with token
	if c.httpsTokenFile != "" && strings.HasPrefix(url, "https://") {
		token, err := os.ReadFile(c.httpsTokenFile)
		if err != nil {
			return fmt.Errorf("failed to read HTTPS token file: %w", err)
		}

		tokenStr := strings.TrimSpace(string(token))

		// Pass the token via environment variable and configure a git
		// credential helper that reads it. This avoids embedding the
		// token directly in a shell expression.
		cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
		cmd.Env = append(cmd.Env, "TEMPLSYNC_GIT_TOKEN="+tokenStr)
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$TEMPLSYNC_GIT_TOKEN"; }; f`,
		)

		return nil
	}

	return nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "fetch").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runCommand executes a command, returning its combined output and an error
// that embeds the output on failure.
func (c *ShellClient) runCommand(cmd *exec.Cmd) (string, error) {
	output, err := cmd.CombinedOutput()
	out := string(output)
	if err != nil {
		return out, fmt.Errorf("%w: %s", err, out)
	}
	return out, nil
}
