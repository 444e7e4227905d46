// Package constants provides shared constants for the capacity-trend application.
package constants

import "time"

// DateLayout is the format expected in config files, query parameters and
// fixture files, and is also the output date format.
const DateLayout = "2006-01-02"

// Utilization constants
const (
	// FallbackCapacity replaces a zero or negative capacity total so that
	// utilization stays finite and close to zero.
	FallbackCapacity = 100000.0

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0

	// AxisStep is the granularity of the utilization axis ceiling.
	AxisStep = 50.0

	// MinTrendPoints is the number of iterations with data needed for a trend.
	MinTrendPoints = 2

	// Tolerance is the tolerance for floating point comparisons of percentages.
	Tolerance = 1e-9
)

// Query defaults
const (
	// DefaultLookbackDays is the default query window ending today.
	DefaultLookbackDays = 90
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Source type constants
const (
	SourceTypeFile = "file"
	SourceTypeHTTP = "http"
	SourceTypeSQL  = "sql"
)

// Source defaults
const (
	// DefaultSourceTimeout bounds a single request to a remote source.
	DefaultSourceTimeout = 30 * time.Second

	// DefaultRequestsPerSecond paces calls to the HTTP source.
	DefaultRequestsPerSecond = 5.0

	// DefaultSQLDriver is used when source.sql.driver is empty.
	DefaultSQLDriver = "sqlite"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "config.yaml.example"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum size of an inline dataset (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024

	// DefaultRequestTimeout bounds one chart request served over HTTP.
	DefaultRequestTimeout = time.Minute
)
