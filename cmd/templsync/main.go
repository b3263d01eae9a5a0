package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/core-unit-bioinformatics/templsync/internal/config"
	"github.com/core-unit-bioinformatics/templsync/internal/git"
	"github.com/core-unit-bioinformatics/templsync/internal/prompt"
	"github.com/core-unit-bioinformatics/templsync/internal/sync"
	"github.com/core-unit-bioinformatics/templsync/internal/tracked"
	"github.com/spf13/cobra"
)

// pyprojectFile holds the template version fields in every project.
const pyprojectFile = "pyproject.toml"

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Sync flags
	projectDir   string
	refRepo      string
	branch       string
	external     bool
	withMetadata bool
	keepMirror   bool
	dryRun       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "templsync",
	Short: "Synchronize projects against their CUBI template repositories",
	Long: `templsync keeps projects created from the CUBI templates in step with
the upstream template repositories.

It clones or refreshes a local mirror of the template next to the project,
compares every tracked file by content, asks before each change and patches
the template version fields in pyproject.toml last.`,
	SilenceUsage: true,
}

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Update the shared metadata files from the metadata template",
	Long: `Metadata syncs the files every CUBI project carries (CITATION.md, LICENSE,
.editorconfig by default) from the metadata template repository and then
reconciles the metadata version recorded in pyproject.toml.

For projects that are not CUBI projects themselves, --external places the
files in a cubi/ subfolder instead of the project root.`,
	RunE: runMetadata,
}

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Update the Snakemake workflow files from the workflow template",
	Long: `Workflow syncs a workflow project against the Snakemake template repository.
All files present in the template are offered one by one, except the
project-specific exclusions; the shared metadata files stay untouched unless
--metadata is given. The template version fields in pyproject.toml are
reconciled last.

A project lacking the template's constants file is probably not a template
instance, so workflow asks before proceeding there.`,
	RunE: runWorkflow,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("templsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/templsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Flags shared by both sync commands
	for _, cmd := range []*cobra.Command{metadataCmd, workflowCmd} {
		cmd.Flags().StringVarP(&projectDir, "project-dir", "p", "", "project directory to synchronize (required)")
		cmd.Flags().StringVar(&refRepo, "ref-repo", "", "template repository URL (default from config)")
		cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch or version tag to sync against (default from config)")
		cmd.Flags().BoolVarP(&keepMirror, "keep", "k", false, "keep the local template mirror after the run")
		cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "report changes without applying them (requires an existing mirror)")
		_ = cmd.MarkFlagRequired("project-dir")
	}

	metadataCmd.Flags().BoolVarP(&external, "external", "e", false, "copy files to the cubi/ subfolder instead of the project root")
	workflowCmd.Flags().BoolVarP(&withMetadata, "metadata", "m", false, "also update the shared metadata files from the workflow template")

	// Add commands
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(versionCmd)
}

func runMetadata(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tpl := cfg.Metadata
	src, absProject, err := resolveSource(tpl, cfg.Git)
	if err != nil {
		return err
	}

	files := tracked.Whole(tpl.Files...)
	files = append(files, tracked.Structured(pyprojectFile, tpl.VersionKeys...))

	engine := newEngine(cfg, logger)
	if _, err := engine.Run(ctx, src, absProject, files, sync.Options{
		External:   external,
		KeepMirror: keepMirror,
	}); err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}
	return nil
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tpl := cfg.Workflow
	src, absProject, err := resolveSource(tpl, cfg.Git)
	if err != nil {
		return err
	}

	exclude := append([]string(nil), tpl.Exclude...)
	if !withMetadata {
		// The shared metadata files belong to the metadata template unless
		// the operator asks to refresh them from here too.
		exclude = append(exclude, tpl.MetadataFiles...)
	}

	files := []tracked.File{tracked.Structured(pyprojectFile, tpl.VersionKeys...)}

	engine := newEngine(cfg, logger)
	if _, err := engine.Run(ctx, src, absProject, files, sync.Options{
		KeepMirror: keepMirror,
		Discover:   true,
		Exclude:    exclude,
		Sentinel:   tpl.Sentinel,
	}); err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}
	return nil
}

// resolveSource combines the configured template with the command line
// overrides and anchors the mirror next to the project directory.
func resolveSource(tpl config.TemplateConfig, gitCfg config.GitConfig) (sync.Source, string, error) {
	absProject, err := filepath.Abs(projectDir)
	if err != nil {
		return sync.Source{}, "", fmt.Errorf("failed to resolve project directory: %w", err)
	}

	url := tpl.URL
	if refRepo != "" {
		url = refRepo
	}
	rev := gitCfg.DefaultRef
	if branch != "" {
		rev = branch
	}

	src := sync.Source{
		URL:        url,
		Revision:   rev,
		MirrorDir:  tpl.MirrorDir(absProject),
		DefaultRef: gitCfg.DefaultRef,
	}
	return src, absProject, nil
}

func newEngine(cfg *config.Config, logger *slog.Logger) *sync.Engine {
	gitClient := git.NewShellClient(cfg.Git.SSHKeyFile, cfg.Git.HTTPSTokenFile, cfg.Git.Timeout())
	asker := prompt.NewTerminal(os.Stdin, os.Stdout)
	return sync.NewEngine(gitClient, asker, logger, dryRun)
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format. Logs go to stderr so stdout stays
	// free for the prompts.
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "templsync", "config.yaml")
		if _, err := os.Stat(configPath); err != nil {
			// The built-in defaults cover the standard CUBI setup.
			logger.Debug("no config file, using built-in defaults")
			return config.Default(), nil
		}
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"metadata_repo", cfg.Metadata.URL,
		"workflow_repo", cfg.Workflow.URL,
		"default_ref", cfg.Git.DefaultRef)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
