package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes both upstream templates plus git behavior. The built-in
// defaults cover the standard setup; a YAML file overrides individual
// fields.
type Config struct {
	Metadata TemplateConfig `yaml:"metadata"`
	Workflow TemplateConfig `yaml:"workflow"`
	Git      GitConfig      `yaml:"git"`
}

// TemplateConfig describes one upstream template repository and the files
// it governs inside a project.
type TemplateConfig struct {
	URL           string   `yaml:"url"`
	MirrorName    string   `yaml:"mirror_name"`    // directory name of the local mirror
	Files         []string `yaml:"files"`          // whole files tracked explicitly
	MetadataFiles []string `yaml:"metadata_files"` // shared metadata files inside this template
	Exclude       []string `yaml:"exclude"`        // relative paths discovery must skip
	Sentinel      string   `yaml:"sentinel"`       // file expected in an initialized project
	VersionKeys   []string `yaml:"version_keys"`   // dotted pyproject.toml key paths
}

// GitConfig tunes the git shell client.
type GitConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	DefaultRef     string `yaml:"default_ref"`
	SSHKeyFile     string `yaml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file"`
}

// Default returns the built-in configuration for the two CUBI templates.
func Default() *Config {
	return &Config{
		Metadata: TemplateConfig{
			URL:         "https://github.com/core-unit-bioinformatics/template-metadata-files.git",
			MirrorName:  "template-metadata-files",
			Files:       []string{"CITATION.md", "LICENSE", ".editorconfig"},
			VersionKeys: []string{"cubi.metadata.version"},
		},
		Workflow: TemplateConfig{
			URL:        "https://github.com/core-unit-bioinformatics/template-snakemake.git",
			MirrorName: "template-snakemake",
			MetadataFiles: []string{
				"CITATION.md",
				"LICENSE",
				".editorconfig",
			},
			Exclude: []string{
				"pyproject.toml",
				"workflow/rules/00_modules.smk",
				"workflow/rules/99_aggregate.smk",
			},
			Sentinel: "workflow/rules/commons/10_constants.smk",
			VersionKeys: []string{
				"cubi.metadata.version",
				"cubi.workflow.template.version",
			},
		},
		Git: GitConfig{
			TimeoutSeconds: 120,
			DefaultRef:     "main",
		},
	}
}

// Load reads and parses the configuration file, filling unset fields from
// the built-in defaults.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	for _, tpl := range []*TemplateConfig{&c.Metadata, &c.Workflow} {
		tpl.URL = os.ExpandEnv(tpl.URL)
		tpl.MirrorName = os.ExpandEnv(tpl.MirrorName)
		tpl.Sentinel = os.ExpandEnv(tpl.Sentinel)
	}
	c.Git.DefaultRef = os.ExpandEnv(c.Git.DefaultRef)
	c.Git.SSHKeyFile = os.ExpandEnv(c.Git.SSHKeyFile)
	c.Git.HTTPSTokenFile = os.ExpandEnv(c.Git.HTTPSTokenFile)
}

// applyDefaults fills zero-value fields from the built-in configuration so
// a partial override file stays valid.
func (c *Config) applyDefaults() {
	def := Default()

	applyTemplateDefaults(&c.Metadata, def.Metadata)
	applyTemplateDefaults(&c.Workflow, def.Workflow)

	if c.Git.TimeoutSeconds == 0 {
		c.Git.TimeoutSeconds = def.Git.TimeoutSeconds
	}
	if c.Git.DefaultRef == "" {
		c.Git.DefaultRef = def.Git.DefaultRef
	}
}

func applyTemplateDefaults(tpl *TemplateConfig, def TemplateConfig) {
	if tpl.URL == "" {
		tpl.URL = def.URL
	}
	if tpl.MirrorName == "" {
		tpl.MirrorName = def.MirrorName
	}
	if len(tpl.Files) == 0 {
		tpl.Files = def.Files
	}
	if len(tpl.MetadataFiles) == 0 {
		tpl.MetadataFiles = def.MetadataFiles
	}
	if len(tpl.Exclude) == 0 {
		tpl.Exclude = def.Exclude
	}
	if tpl.Sentinel == "" {
		tpl.Sentinel = def.Sentinel
	}
	if len(tpl.VersionKeys) == 0 {
		tpl.VersionKeys = def.VersionKeys
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	for name, tpl := range map[string]TemplateConfig{
		"metadata": c.Metadata,
		"workflow": c.Workflow,
	} {
		if tpl.URL == "" {
			return fmt.Errorf("%s.url is required", name)
		}
		if tpl.MirrorName == "" {
			return fmt.Errorf("%s.mirror_name is required", name)
		}
		if filepath.Base(tpl.MirrorName) != tpl.MirrorName {
			return fmt.Errorf("%s.mirror_name must be a bare directory name: %s", name, tpl.MirrorName)
		}
		for _, key := range tpl.VersionKeys {
			if !strings.Contains(key, ".") {
				return fmt.Errorf("%s.version_keys entry %q is not a dotted key path", name, key)
			}
		}
	}

	if c.Git.TimeoutSeconds <= 0 {
		return fmt.Errorf("git.timeout_seconds must be positive, got %d", c.Git.TimeoutSeconds)
	}
	if c.Git.DefaultRef == "" {
		return fmt.Errorf("git.default_ref is required")
	}

	// Only one auth method may be configured
	if c.Git.SSHKeyFile != "" && c.Git.HTTPSTokenFile != "" {
		return fmt.Errorf("git: only one of ssh_key_file or https_token_file may be set")
	}

	return nil
}

// Timeout returns the per-operation bound for remote git commands.
func (g GitConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// MirrorDir returns where the reference mirror for this template lives:
// parallel to the project directory, so repeated runs and sibling projects
// find it in the same place.
func (t TemplateConfig) MirrorDir(projectDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(projectDir)), t.MirrorName)
}
