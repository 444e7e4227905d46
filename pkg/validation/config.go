// Package validation provides configuration validation utilities.
package validation

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/iwvelando/capacity-trend/pkg/constants"
	"github.com/iwvelando/capacity-trend/pkg/datetime"
)

// QueryInfo is the query section of a configuration.
type QueryInfo struct {
	StartDate    string
	EndDate      string
	LookbackDays int
}

// SourceInfo is the source section of a configuration.
type SourceInfo struct {
	Type       string
	File       string
	BaseURL    string
	SQLDriver  string
	SQLDSN     string
	TokenEnvOK bool
}

// ValidateQuery checks the query window and returns warnings. Problems here
// never stop a run: an inverted range simply selects nothing.
func ValidateQuery(q QueryInfo) []string {
	var warnings []string

	start, startErr := parseOptional(q.StartDate)
	if startErr != nil {
		warnings = append(warnings, fmt.Sprintf("Query start date %q is invalid: %v", q.StartDate, startErr))
	}
	end, endErr := parseOptional(q.EndDate)
	if endErr != nil {
		warnings = append(warnings, fmt.Sprintf("Query end date %q is invalid: %v", q.EndDate, endErr))
	}

	if q.StartDate != "" && q.EndDate != "" && startErr == nil && endErr == nil {
		if !start.Before(end) {
			warnings = append(warnings, fmt.Sprintf("Query start date is not before end date (%s >= %s) - no iterations will be selected",
				q.StartDate, q.EndDate))
		}
		if q.LookbackDays > 0 && q.LookbackDays != constants.DefaultLookbackDays {
			warnings = append(warnings, "Query lookbackDays is ignored when both startDate and endDate are set")
		}
	}

	return warnings
}

func parseOptional(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return datetime.ParseDate(value)
}

// ValidateSource checks that the selected source has what it needs to run.
func ValidateSource(s SourceInfo) error {
	switch s.Type {
	case constants.SourceTypeFile:
		if strings.TrimSpace(s.File) == "" {
			return fmt.Errorf("source.file is required for source type %s", s.Type)
		}
	case constants.SourceTypeHTTP:
		u, err := url.Parse(s.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("source.http.baseURL must be an absolute URL, got %q", s.BaseURL)
		}
		if !s.TokenEnvOK {
			return fmt.Errorf("source.http.tokenEnv names an unset environment variable")
		}
	case constants.SourceTypeSQL:
		switch s.SQLDriver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("source.sql.driver must be sqlite or postgres, got %q", s.SQLDriver)
		}
		if strings.TrimSpace(s.SQLDSN) == "" {
			return fmt.Errorf("source.sql.dsn is required")
		}
	default:
		return fmt.Errorf("unknown source type %q", s.Type)
	}
	return nil
}

// EnvSet reports whether the named environment variable is set.
func EnvSet(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}
