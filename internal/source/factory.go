package source

import (
	"fmt"

	"github.com/iwvelando/capacity-trend/internal/config"
	"github.com/iwvelando/capacity-trend/pkg/constants"
	"go.uber.org/zap"
)

// New builds the source selected by cfg.Type.
func New(cfg config.SourceConfig, logger *zap.Logger) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("building data source",
		zap.String("op", "source.New"),
		zap.String("type", cfg.Type),
	)

	switch cfg.Type {
	case constants.SourceTypeFile, "":
		if cfg.File == "" {
			return nil, fmt.Errorf("file source requires a path")
		}
		return NewFileSource(cfg.File, logger), nil
	case constants.SourceTypeHTTP:
		return NewHTTPSource(cfg.HTTP, logger)
	case constants.SourceTypeSQL:
		driver := cfg.SQL.Driver
		if driver == "" {
			driver = constants.DefaultSQLDriver
		}
		return OpenSQL(driver, cfg.SQL.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}
