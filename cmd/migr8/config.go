package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gnana997/migr8/pkg/report"
)

// Config file names under the report directory, in lookup order.
const (
	configFile     = "config.yaml"
	configFileTOML = "config.toml"
)

// Config holds the contents of .migr8/config.yaml (or config.toml) after
// environment and flag overrides.
type Config struct {
	RulesFile      string        `yaml:"rules_file" toml:"rules_file"`
	Packages       []string      `yaml:"packages" toml:"packages"`
	Concurrency    int           `yaml:"concurrency" toml:"concurrency"`
	BatchThreshold int           `yaml:"batch_threshold" toml:"batch_threshold"`
	BatchSize      int           `yaml:"batch_size" toml:"batch_size"`
	MaxRetries     int           `yaml:"max_retries" toml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" toml:"retry_base_delay"`
	ValidateSyntax bool          `yaml:"validate_syntax" toml:"validate_syntax"`
	LargeCodebase  bool          `yaml:"large_codebase" toml:"large_codebase"`
	MaxFileSize    int64         `yaml:"max_file_size" toml:"max_file_size"`
	Include        []string      `yaml:"include" toml:"include"`
	Exclude        []string      `yaml:"exclude" toml:"exclude"`
	LogLevel       string        `yaml:"log_level" toml:"log_level"`
	LogFormat      string        `yaml:"log_format" toml:"log_format"`
	ReportDir      string        `yaml:"report_dir" toml:"report_dir"`
	BackupDir      string        `yaml:"backup_dir" toml:"backup_dir"`
}

// loadConfig reads <root>/.migr8/config.yaml, falling back to config.toml.
// With neither present it returns the zero Config.
func loadConfig(root string) (*Config, error) {
	dir := filepath.Join(root, report.DefaultDir)
	var cfg Config

	path := filepath.Join(dir, configFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return &cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	path = filepath.Join(dir, configFileTOML)
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// loadDotenv loads .env from the working directory and from root. Variables
// already set in the environment win.
func loadDotenv(root string) error {
	for _, path := range []string{".env", filepath.Join(root, ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// resolveRoot picks the project root: the positional argument, then
// MIGR8_ROOT, then the working directory.
func resolveRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 && args[0] != "" {
		root = args[0]
	} else if env := os.Getenv("MIGR8_ROOT"); env != "" {
		root = env
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project root %s is not a directory", abs)
	}
	return abs, nil
}

// applyEnv overrides cfg with MIGR8_* variables.
func (c *Config) applyEnv() error {
	var problems []error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}

	str("MIGR8_RULES", &c.RulesFile)
	str("MIGR8_LOG_LEVEL", &c.LogLevel)
	str("MIGR8_LOG_FORMAT", &c.LogFormat)
	str("MIGR8_REPORT_DIR", &c.ReportDir)
	str("MIGR8_BACKUP_DIR", &c.BackupDir)
	num("MIGR8_CONCURRENCY", &c.Concurrency)
	num("MIGR8_MAX_RETRIES", &c.MaxRetries)
	if v := os.Getenv("MIGR8_PACKAGES"); v != "" {
		c.Packages = splitList(v)
	}
	if v := os.Getenv("MIGR8_VALIDATE_SYNTAX"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			problems = append(problems, fmt.Errorf("MIGR8_VALIDATE_SYNTAX: %w", err))
		} else {
			c.ValidateSyntax = b
		}
	}
	return errors.Join(problems...)
}

// applyFlags overrides cfg with every flag the user set explicitly. Flags a
// command does not define are ignored.
func (c *Config) applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	var problems []error
	set := func(name string, apply func(name string) error) {
		if f := flags.Lookup(name); f == nil || !f.Changed {
			return
		}
		if err := apply(name); err != nil {
			problems = append(problems, fmt.Errorf("--%s: %w", name, err))
		}
	}
	set("rules", func(n string) (err error) { c.RulesFile, err = flags.GetString(n); return })
	set("package", func(n string) (err error) { c.Packages, err = flags.GetStringSlice(n); return })
	set("concurrency", func(n string) (err error) { c.Concurrency, err = flags.GetInt(n); return })
	set("max-retries", func(n string) (err error) { c.MaxRetries, err = flags.GetInt(n); return })
	set("validate-syntax", func(n string) (err error) { c.ValidateSyntax, err = flags.GetBool(n); return })
	set("large-codebase", func(n string) (err error) { c.LargeCodebase, err = flags.GetBool(n); return })
	set("include", func(n string) (err error) { c.Include, err = flags.GetStringSlice(n); return })
	set("exclude", func(n string) (err error) { c.Exclude, err = flags.GetStringSlice(n); return })
	set("log-level", func(n string) (err error) { c.LogLevel, err = flags.GetString(n); return })
	set("log-format", func(n string) (err error) { c.LogFormat, err = flags.GetString(n); return })
	return errors.Join(problems...)
}

// resolvePaths makes the directory and file settings absolute, relative to
// root, and fills their defaults.
func (c *Config) resolvePaths(root string) {
	if c.ReportDir == "" {
		c.ReportDir = report.DefaultDir
	}
	c.ReportDir = under(root, c.ReportDir)
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(c.ReportDir, "backups")
	}
	c.BackupDir = under(root, c.BackupDir)
	if c.RulesFile == "" {
		c.RulesFile = filepath.Join(c.ReportDir, report.RulesFile)
	}
	c.RulesFile = under(root, c.RulesFile)
}

func under(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
