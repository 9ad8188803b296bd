package cli

import (
	"time"

	"sbx/internal/config"
)

// Flags holds command-line flags
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

// ToConfigFlags converts CLI flags to config flags
func (f *Flags) ToConfigFlags() config.Flags {
	return config.Flags{
		ProjectPath:    f.ProjectPath,
		ConfigFile:     f.ConfigFile,
		Concurrency:    f.Concurrency,
		ShowFrameTitle: f.ShowFrameTitle,
		TestPath:       f.TestPath,
		NameFilter:     f.NameFilter,
		TestCases:      f.TestCases,
		MySQLDSN:       f.MySQLDSN,
		ConsumerURL:    f.ConsumerURL,
		MetricsAddr:    f.MetricsAddr,
		LogLevel:       f.LogLevel,
		Deadline:       f.Deadline,
	}
}
