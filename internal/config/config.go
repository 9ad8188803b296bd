package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Project settings
	ProjectPath string `yaml:"-"`
	TestPath    string `yaml:"test_path"`

	// Output settings
	OutputJSONFile string `yaml:"output_file"`
	OutputJSONDir  string `yaml:"output_dir"`

	// Execution settings
	Concurrency    int           `yaml:"-"`
	ShowFrameTitle bool          `yaml:"show_frame_title"`
	Filter         string        `yaml:"filter"`
	Deadline       time.Duration `yaml:"deadline"`
	SuiteTimeout   time.Duration `yaml:"suite_timeout"`

	// Consumers
	MySQLDSN    string `yaml:"mysql_dsn"`
	ConsumerURL string `yaml:"consumer_url"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogDev   bool   `yaml:"log_dev"`

	// Paths to ignore when scanning
	PathsToIgnore []string `yaml:"ignore"`

	// Command flags
	Flags Flags `yaml:"-"`
}

// Flags holds command-line flags. Zero values leave the lower layers alone.
type Flags struct {
	ProjectPath    string
	ConfigFile     string
	Concurrency    string
	ShowFrameTitle bool
	TestPath       string
	NameFilter     string
	TestCases      bool
	MySQLDSN       string
	ConsumerURL    string
	MetricsAddr    string
	LogLevel       string
	Deadline       time.Duration
}

// fileConfig mirrors Config for the YAML layer; concurrency stays raw so a
// non-numeric value falls back to the default like everywhere else.
type fileConfig struct {
	Config      `yaml:",inline"`
	Concurrency string `yaml:"concurrency"`
}

// environment is the SBX_* layer
type environment struct {
	TestPath       string        `envconfig:"TEST_PATH"`
	OutputDir      string        `envconfig:"OUTPUT_DIR"`
	OutputFile     string        `envconfig:"OUTPUT_FILE"`
	Concurrency    string        `envconfig:"CONCURRENCY"`
	ShowFrameTitle bool          `envconfig:"SHOW_FRAME_TITLE"`
	Filter         string        `envconfig:"FILTER"`
	Deadline       time.Duration `envconfig:"DEADLINE"`
	SuiteTimeout   time.Duration `envconfig:"SUITE_TIMEOUT"`
	MySQLDSN       string        `envconfig:"MYSQL_DSN"`
	ConsumerURL    string        `envconfig:"CONSUMER_URL"`
	MetricsAddr    string        `envconfig:"METRICS_ADDR"`
	LogLevel       string        `envconfig:"LOG_LEVEL"`
	LogDev         bool          `envconfig:"LOG_DEV"`
}

// New creates a new Config with defaults
func New() *Config {
	cfg := &Config{
		ProjectPath:    DefaultProjectPath,
		TestPath:       DefaultTestPath,
		OutputJSONFile: DefaultOutputJSONFile,
		OutputJSONDir:  DefaultOutputJSONDir,
		Concurrency:    DefaultConcurrency,
		LogLevel:       DefaultLogLevel,
	}
	// Copy default paths to ignore
	cfg.PathsToIgnore = make([]string, len(DefaultPathsToIgnore))
	copy(cfg.PathsToIgnore, DefaultPathsToIgnore)
	return cfg
}

// Load builds the configuration from defaults, the YAML file, the project
// .env file, SBX_* variables and finally the flags.
func Load(flags Flags) (*Config, error) {
	cfg := New()
	if flags.ProjectPath != "" {
		cfg.ProjectPath = flags.ProjectPath
	}

	if err := cfg.loadFile(flags.ConfigFile); err != nil {
		return nil, err
	}
	if err := godotenv.Load(filepath.Join(cfg.ProjectPath, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	cfg.applyFlags(flags)
	return cfg, nil
}

// loadFile reads the YAML layer. An explicit file must exist; the default
// one is optional.
func (c *Config) loadFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(c.ProjectPath, DefaultConfigFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	file := fileConfig{Config: *c}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	project, flags := c.ProjectPath, c.Flags
	*c = file.Config
	c.ProjectPath, c.Flags = project, flags
	if file.Concurrency != "" {
		c.Concurrency = ParseConcurrency(file.Concurrency)
	}
	return nil
}

func (c *Config) loadEnv() error {
	env := environment{
		TestPath:       c.TestPath,
		OutputDir:      c.OutputJSONDir,
		OutputFile:     c.OutputJSONFile,
		ShowFrameTitle: c.ShowFrameTitle,
		Filter:         c.Filter,
		Deadline:       c.Deadline,
		SuiteTimeout:   c.SuiteTimeout,
		MySQLDSN:       c.MySQLDSN,
		ConsumerURL:    c.ConsumerURL,
		MetricsAddr:    c.MetricsAddr,
		LogLevel:       c.LogLevel,
		LogDev:         c.LogDev,
	}
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	c.TestPath = env.TestPath
	c.OutputJSONDir = env.OutputDir
	c.OutputJSONFile = env.OutputFile
	c.ShowFrameTitle = env.ShowFrameTitle
	c.Filter = env.Filter
	c.Deadline = env.Deadline
	c.SuiteTimeout = env.SuiteTimeout
	c.MySQLDSN = env.MySQLDSN
	c.ConsumerURL = env.ConsumerURL
	c.MetricsAddr = env.MetricsAddr
	c.LogLevel = env.LogLevel
	c.LogDev = env.LogDev
	if env.Concurrency != "" {
		c.Concurrency = ParseConcurrency(env.Concurrency)
	}
	return nil
}

func (c *Config) applyFlags(flags Flags) {
	c.Flags = flags

	// Apply flag overrides
	if flags.Concurrency != "" {
		c.Concurrency = ParseConcurrency(flags.Concurrency)
	}
	if flags.ShowFrameTitle {
		c.ShowFrameTitle = true
	}
	if flags.NameFilter != "" {
		c.Filter = flags.NameFilter
	}
	if flags.MySQLDSN != "" {
		c.MySQLDSN = flags.MySQLDSN
	}
	if flags.ConsumerURL != "" {
		c.ConsumerURL = flags.ConsumerURL
	}
	if flags.MetricsAddr != "" {
		c.MetricsAddr = flags.MetricsAddr
	}
	if flags.LogLevel != "" {
		c.LogLevel = flags.LogLevel
	}
	if flags.Deadline > 0 {
		c.Deadline = flags.Deadline
	}
}

// ParseConcurrency reads a concurrency cap. Empty, non-numeric and
// non-positive values yield DefaultConcurrency.
func ParseConcurrency(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return DefaultConcurrency
	}
	return n
}

// GetTestPath returns the test path, using flag if provided
func (c *Config) GetTestPath() string {
	if c.Flags.TestPath != "" {
		// If TestPath is provided, make it relative to the project if it's not absolute
		if filepath.IsAbs(c.Flags.TestPath) {
			return c.Flags.TestPath
		}
		return filepath.Join(c.ProjectPath, c.Flags.TestPath)
	}

	if filepath.IsAbs(c.TestPath) {
		return c.TestPath
	}
	// Default: combine project path and test path
	return filepath.Join(c.ProjectPath, c.TestPath)
}

// GetOutputPath returns the full path to the output JSON file (under project so run and failures use the same file).
// Resolves to an absolute path so run and failures always read/write the same file regardless of cwd.
func (c *Config) GetOutputPath() string {
	p := filepath.Join(c.ProjectPath, c.OutputJSONDir, c.OutputJSONFile)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
