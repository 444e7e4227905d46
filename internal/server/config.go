package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/capacity-trend/internal/config"
	"github.com/iwvelando/capacity-trend/pkg/constants"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of the chart server.
type Config struct {
	Address        string               `yaml:"address"`
	MaxUploadSize  string               `yaml:"maxUploadSize"`
	RequestTimeout time.Duration        `yaml:"requestTimeout"`
	Logging        config.LoggingConfig `yaml:"logging"`

	// uploadLimit is MaxUploadSize in bytes, resolved on load.
	uploadLimit int64
}

// sizeUnits maps the accepted size suffixes to their multipliers. Longer
// suffixes come first so "MB" is not read as "B".
var sizeUnits = []struct {
	suffix string
	factor int64
}{
	{"KB", 1 << 10},
	{"MB", 1 << 20},
	{"GB", 1 << 30},
	{"K", 1 << 10},
	{"M", 1 << 20},
	{"G", 1 << 30},
	{"B", 1},
}

func defaultConfig() *Config {
	return &Config{
		Address:        constants.DefaultServerAddress,
		MaxUploadSize:  strconv.FormatInt(constants.DefaultMaxUploadSizeBytes, 10),
		RequestTimeout: constants.DefaultRequestTimeout,
		uploadLimit:    constants.DefaultMaxUploadSizeBytes,
	}
}

// LoadConfig reads the server settings at path. An empty path or a missing
// file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read server config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse server config %s: %w", path, err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, fmt.Errorf("server config %s: %w", path, err)
	}
	return cfg, nil
}

// UploadSizeBytes is the largest inline dataset the server accepts.
func (c *Config) UploadSizeBytes() int64 {
	return c.uploadLimit
}

// resolve fills blank fields with defaults and rejects values the server
// cannot run with.
func (c *Config) resolve() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = constants.DefaultServerAddress
	}

	switch {
	case c.RequestTimeout < 0:
		return fmt.Errorf("requestTimeout must not be negative, got %s", c.RequestTimeout)
	case c.RequestTimeout == 0:
		c.RequestTimeout = constants.DefaultRequestTimeout
	}

	limit, err := ParseSize(c.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("maxUploadSize: %w", err)
	}
	if limit == 0 {
		return fmt.Errorf("maxUploadSize must be positive, got %q", c.MaxUploadSize)
	}
	c.uploadLimit = limit
	return nil
}

// ParseSize reads a byte count such as "4096", "256K" or "2MB". Units are
// binary and case-insensitive. A blank value means the default upload size.
func ParseSize(value string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(value))
	if s == "" {
		return constants.DefaultMaxUploadSizeBytes, nil
	}

	factor := int64(1)
	for _, u := range sizeUnits {
		if rest, ok := strings.CutSuffix(s, u.suffix); ok {
			s, factor = strings.TrimSpace(rest), u.factor
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", value)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", value)
	}
	if n > (1<<63-1)/factor {
		return 0, fmt.Errorf("size %q overflows", value)
	}
	return n * factor, nil
}
