// Package config defines the data structures related to configuration and
// includes functions for loading the config and resolving the query range.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iwvelando/capacity-trend/pkg/constants"
	"github.com/iwvelando/capacity-trend/pkg/datetime"
	"github.com/iwvelando/capacity-trend/pkg/validation"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for capacity-trend.
type Configuration struct {
	Query   QueryConfig   `yaml:"query"`
	Source  SourceConfig  `yaml:"source"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Output  OutputConfig  `yaml:"output,omitempty"`
}

// QueryConfig selects the iterations to chart. Explicit dates win over
// LookbackDays.
type QueryConfig struct {
	StartDate    string `yaml:"startDate,omitempty"`
	EndDate      string `yaml:"endDate,omitempty"`
	LookbackDays int    `yaml:"lookbackDays,omitempty"`
}

// SourceConfig selects and configures the data source adapter.
type SourceConfig struct {
	Type string           `yaml:"type"` // file, http, sql
	File string           `yaml:"file,omitempty"`
	HTTP HTTPSourceConfig `yaml:"http,omitempty"`
	SQL  SQLSourceConfig  `yaml:"sql,omitempty"`
}

// HTTPSourceConfig configures the remote JSON API source.
type HTTPSourceConfig struct {
	BaseURL           string        `yaml:"baseURL"`
	TokenEnv          string        `yaml:"tokenEnv,omitempty"` // env var holding a bearer token
	RequestsPerSecond float64       `yaml:"requestsPerSecond,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
}

// SQLSourceConfig configures the database source.
type SQLSourceConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres
	DSN    string `yaml:"dsn"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv, json
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}
	return decode(v)
}

// LoadConfigurationFromReader loads a YAML-formatted configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %s", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yml")
	v.SetEnvPrefix("CAPACITY_TREND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	configuration.applyDefaults()
	return &configuration, nil
}

func (conf *Configuration) applyDefaults() {
	if conf.Query.LookbackDays <= 0 {
		conf.Query.LookbackDays = constants.DefaultLookbackDays
	}
	if conf.Source.Type == "" {
		conf.Source.Type = constants.SourceTypeFile
	}
	if conf.Source.HTTP.RequestsPerSecond <= 0 {
		conf.Source.HTTP.RequestsPerSecond = constants.DefaultRequestsPerSecond
	}
	if conf.Source.HTTP.Timeout <= 0 {
		conf.Source.HTTP.Timeout = constants.DefaultSourceTimeout
	}
	if conf.Source.SQL.Driver == "" {
		conf.Source.SQL.Driver = constants.DefaultSQLDriver
	}
}

// Range resolves the query window. Missing explicit dates fall back to the
// lookback window ending on the day of now.
func (q QueryConfig) Range(now time.Time) (time.Time, time.Time, error) {
	days := q.LookbackDays
	if days <= 0 {
		days = constants.DefaultLookbackDays
	}
	start, end := datetime.Lookback(now, days)

	var err error
	if q.EndDate != "" {
		end, err = datetime.ParseDate(q.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("query.endDate: %w", err)
		}
		if q.StartDate == "" {
			start = end.AddDate(0, 0, -days)
		}
	}
	if q.StartDate != "" {
		start, err = datetime.ParseDate(q.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("query.startDate: %w", err)
		}
	}
	return start, end, nil
}

// Validate returns an error for configuration that cannot be run.
func (conf *Configuration) Validate() error {
	if conf.Output.Format != "" {
		if err := validation.ValidateOutputFormat(conf.Output.Format); err != nil {
			return err
		}
	}
	return validation.ValidateSource(validation.SourceInfo{
		Type:       conf.Source.Type,
		File:       conf.Source.File,
		BaseURL:    conf.Source.HTTP.BaseURL,
		SQLDriver:  conf.Source.SQL.Driver,
		SQLDSN:     conf.Source.SQL.DSN,
		TokenEnvOK: conf.Source.HTTP.TokenEnv == "" || validation.EnvSet(conf.Source.HTTP.TokenEnv),
	})
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (conf *Configuration) ValidateConfiguration() []string {
	return validation.ValidateQuery(validation.QueryInfo{
		StartDate:    conf.Query.StartDate,
		EndDate:      conf.Query.EndDate,
		LookbackDays: conf.Query.LookbackDays,
	})
}
