package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"sbx/internal/config"
	"sbx/internal/discovery"
	"sbx/internal/storage"
	"sbx/internal/ui"
)

// ListCommand handles the list command
type ListCommand struct {
	config    *config.Config
	scanner   *discovery.Scanner
	filter    *discovery.Filter
	formatter *ui.Formatter
	storage   storage.Storage
}

// NewListCommand creates a new ListCommand
func NewListCommand(
	cfg *config.Config,
	scanner *discovery.Scanner,
	filter *discovery.Filter,
	formatter *ui.Formatter,
	st storage.Storage,
) *ListCommand {
	return &ListCommand{
		config:    cfg,
		scanner:   scanner,
		filter:    filter,
		formatter: formatter,
		storage:   st,
	}
}

// Execute runs the command
func (lc *ListCommand) Execute(cmd *cobra.Command, args []string) error {
	manifest, err := lc.scanner.Scan(lc.config.GetTestPath())
	if err != nil {
		return err
	}

	suites := lc.filter.FilterByName(manifest.Suites(), lc.config.Filter)
	if len(suites) == 0 {
		color.Yellow("No suites found")
		return nil
	}

	lc.formatter.PrintSuiteList(suites, lc.config.Flags.TestCases, lastFailures(lc.storage))
	return nil
}

// lastFailures returns the names of the suites that failed in the last
// stored run. A missing or unreadable record yields none.
func lastFailures(st storage.Storage) map[string]struct{} {
	record, err := st.Load()
	if err != nil {
		return nil
	}
	failed := make(map[string]struct{})
	for _, failure := range record.Details {
		if !failure.Resolved {
			failed[failure.Suite()] = struct{}{}
		}
	}
	return failed
}
