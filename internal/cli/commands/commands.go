package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"sbx/internal/cli"
	"sbx/internal/config"
	"sbx/internal/discovery"
	"sbx/internal/logging"
	"sbx/internal/storage"
	"sbx/internal/ui"
)

// Commands holds all CLI commands
type Commands struct {
	config   *config.Config
	logger   *zap.Logger
	archive  *storage.MySQLStorage
	Run      *RunCommand
	List     *ListCommand
	Failures *FailuresCommand
}

// NewCommands creates the command set. Dependencies are built by Setup once
// the flags are parsed.
func NewCommands(cfg *config.Config) *Commands {
	return &Commands{config: cfg}
}

// Setup loads the configuration layers and creates the command dependencies
func (c *Commands) Setup(flags *cli.Flags) error {
	cfg, err := config.Load(flags.ToConfigFlags())
	if err != nil {
		return err
	}
	*c.config = *cfg

	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.LogDev,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	c.logger = logger

	var st storage.Storage = storage.NewJSONStorage(c.config)
	if cfg.MySQLDSN != "" {
		archive, err := storage.NewMySQLStorage(cfg.MySQLDSN)
		if err != nil {
			return err
		}
		c.archive = archive
		st = storage.NewTee(st, archive)
	}

	scanner := discovery.NewScanner(cfg.PathsToIgnore)
	filter := discovery.NewFilter()
	parser := discovery.NewParser()
	formatter := ui.NewFormatter(c.config, parser)
	viewer := ui.NewFailureViewer(st)

	c.Run = NewRunCommand(c.config, logger, scanner, filter, st, formatter)
	c.List = NewListCommand(c.config, scanner, filter, formatter, st)
	c.Failures = NewFailuresCommand(st, viewer)
	return nil
}

// Close releases what Setup acquired
func (c *Commands) Close() error {
	var errs []error
	if c.archive != nil {
		errs = append(errs, c.archive.Close())
	}
	if c.logger != nil {
		// stderr cannot always be synced; the error carries no information
		_ = c.logger.Sync()
	}
	return errors.Join(errs...)
}

// Register registers all commands with cobra
func (c *Commands) Register(rootCmd *cobra.Command, flags *cli.Flags) {
	rootCmd.PersistentFlags().StringVarP(&flags.ProjectPath, "project", "p", "", "Project directory holding sbx.yaml, .env and the results file")
	rootCmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "Path to the YAML config file (default <project>/sbx.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flags.TestPath, "test-path", "t", "", "Path to the folder where suite discovery should start")
	rootCmd.PersistentFlags().StringVarP(&flags.NameFilter, "filter", "f", "", "Filter suites by name pattern (supports wildcards, e.g., '*.sandbox.js' or 'auth*')")
	rootCmd.PersistentFlags().StringVar(&flags.MySQLDSN, "mysql-dsn", "", "Archive run records in MySQL (e.g. user:pass@tcp(host:3306)/sbx)")
	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return c.Setup(flags)
	}

	// Run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run sandboxed suites as one test run",
		Long:  "Discover suites and run each one in its own sandbox, reporting a single unified result stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run.Execute(cmd, args)
		},
	}
	runCmd.Flags().StringVarP(&flags.Concurrency, "concurrency", "c", "", "Maximum number of suites running at once (default 10)")
	runCmd.Flags().BoolVar(&flags.ShowFrameTitle, "show-frame-title", false, "Expose the suite title to sandboxes")
	runCmd.Flags().StringVar(&flags.ConsumerURL, "consumer-url", "", "Stream every consumer call to this websocket URL")
	runCmd.Flags().StringVar(&flags.MetricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address while running")
	runCmd.Flags().DurationVar(&flags.Deadline, "deadline", 0, "Fail every suite still running after this duration")
	rootCmd.AddCommand(runCmd)

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered suites",
		Long:  "Scan and list all suites without running them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List.Execute(cmd, args)
		},
	}
	listCmd.Flags().BoolVar(&flags.TestCases, "test-cases", false, "List test cases declared in each suite")
	rootCmd.AddCommand(listCmd)

	// Failures command
	failuresCmd := &cobra.Command{
		Use:   "failures",
		Short: "View test failures interactively",
		Long:  "Display test failures from the last run in an interactive viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Failures.Execute(cmd, args)
		},
	}
	rootCmd.AddCommand(failuresCmd)
}
