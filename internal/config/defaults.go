package config

const (
	// DefaultProjectPath is the default project path
	DefaultProjectPath = "."
	// DefaultTestPath is the default suite root, relative to the project
	DefaultTestPath = "."
	// DefaultOutputJSONFile is the default output JSON file name
	DefaultOutputJSONFile = "sbx-results.json"
	// DefaultOutputJSONDir is the default output directory
	DefaultOutputJSONDir = "storage"
	// DefaultConcurrency is the default number of suites running at once
	DefaultConcurrency = 10
	// DefaultConfigFile is looked up in the project path
	DefaultConfigFile = "sbx.yaml"
	// DefaultLogLevel is the default zap level
	DefaultLogLevel = "info"
	// EnvPrefix prefixes every environment variable
	EnvPrefix = "SBX"
)

// DefaultPathsToIgnore are the default directories to ignore when scanning for suites
var DefaultPathsToIgnore = []string{
	"node_modules",
	"vendor",
	".git",
	"storage",
}
