package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"sbx/internal/config"
	"sbx/internal/discovery"
	"sbx/internal/domain"
	"sbx/internal/logging"
	"sbx/internal/metrics"
	"sbx/internal/orchestrator"
	"sbx/internal/report"
	"sbx/internal/sandbox"
	"sbx/internal/sandbox/jsvm"
	"sbx/internal/sandbox/process"
	"sbx/internal/storage"
	"sbx/internal/ui"
)

const shutdownTimeout = 5 * time.Second

// RunCommand handles the run command
type RunCommand struct {
	config    *config.Config
	logger    *zap.Logger
	scanner   *discovery.Scanner
	filter    *discovery.Filter
	storage   storage.Storage
	formatter *ui.Formatter
	progress  io.Writer
}

// NewRunCommand creates a new RunCommand
func NewRunCommand(
	cfg *config.Config,
	logger *zap.Logger,
	scanner *discovery.Scanner,
	filter *discovery.Filter,
	st storage.Storage,
	formatter *ui.Formatter,
) *RunCommand {
	return &RunCommand{
		config:    cfg,
		logger:    logging.OrNop(logger),
		scanner:   scanner,
		filter:    filter,
		storage:   st,
		formatter: formatter,
		progress:  os.Stderr,
	}
}

// Execute runs the command
func (rc *RunCommand) Execute(cmd *cobra.Command, args []string) error {
	// Discover suites
	manifest, err := rc.scanner.Scan(rc.config.GetTestPath())
	if err != nil {
		return err
	}
	suites := rc.filter.FilterByName(manifest.Suites(), rc.config.Filter)
	if len(suites) == 0 {
		color.Yellow("No suites to execute")
		return nil
	}
	for name, paths := range discovery.SharedNames(suites) {
		rc.logger.Warn("suites share a name; their result ids collide",
			zap.String("name", name),
			zap.Strings("paths", paths),
		)
	}

	record, err := rc.execute(cmd.Context(), suites)
	if err != nil {
		return err
	}

	rc.formatter.PrintMetaStats(record)
	if record.Meta.FailedTests > 0 || record.Meta.Errors > 0 {
		return fmt.Errorf("run failed: %d failed test(s), %d error(s)", record.Meta.FailedTests, record.Meta.Errors)
	}
	return nil
}

// execute runs the suites with the configured consumers and returns the
// recorded outcome
func (rc *RunCommand) execute(ctx context.Context, suites []domain.Descriptor) (*domain.RunRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := uuid.NewString()
	m := metrics.New()

	recorder := report.NewRecorder(rc.storage, runID, rc.config.Concurrency, len(suites), rc.logger)
	reporters := []report.Reporter{report.NewConsole(rc.progress, rc.logger), recorder}
	if rc.config.ConsumerURL != "" {
		ws, err := report.DialWebSocket(ctx, rc.config.ConsumerURL, rc.logger)
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, ws)
	}
	consumer := report.NewMulti(reporters...)

	run := orchestrator.New(orchestrator.Config{
		ID:             runID,
		Concurrency:    rc.config.Concurrency,
		ShowFrameTitle: rc.config.ShowFrameTitle,
		Deadline:       rc.config.Deadline,
	}, rc.factory(runID), consumer, rc.logger, m)

	g, gctx := errgroup.WithContext(ctx)
	var server *http.Server
	if rc.config.MetricsAddr != "" {
		server = &http.Server{Addr: rc.config.MetricsAddr, Handler: m.Handler()}
		g.Go(func() error {
			rc.logger.Info("serving metrics", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if server != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()
		}
		return run.Execute(gctx, suites)
	})

	runErr := g.Wait()
	closeErr := consumer.Close()
	if runErr != nil {
		return nil, runErr
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return recorder.Record(), nil
}

// factory routes suites to the sandbox matching their kind
func (rc *RunCommand) factory(runID string) sandbox.Factory {
	projectDir := rc.config.ProjectPath
	env := []string{"SBX_RUN_ID=" + runID}
	if rc.config.ShowFrameTitle {
		env = append(env, "SBX_SHOW_FRAME_TITLE=1")
	}

	return sandbox.Router{
		domain.KindJS: jsvm.NewFactory(jsvm.Options{
			Logger: rc.logger,
			Config: map[string]any{
				"runId":          runID,
				"showFrameTitle": rc.config.ShowFrameTitle,
			},
			Timeout: rc.config.SuiteTimeout,
		}),
		domain.KindProcess: process.NewFactory(process.Options{
			Logger: rc.logger,
			Dir:    projectDir,
			Env:    env,
		}),
	}
}
