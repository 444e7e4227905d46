package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/iwvelando/capacity-trend/internal/chart"
	"github.com/iwvelando/capacity-trend/internal/config"
	"github.com/iwvelando/capacity-trend/internal/server"
	"github.com/iwvelando/capacity-trend/internal/session"
	"github.com/iwvelando/capacity-trend/internal/source"
	"github.com/iwvelando/capacity-trend/pkg/constants"
	"github.com/iwvelando/capacity-trend/pkg/output"
	"github.com/iwvelando/capacity-trend/pkg/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// Determine log level (CLI override takes precedence)
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var zc zap.Config
	switch format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	case "json":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	zc.Level = zap.NewAtomicLevelAt(zapLevel)

	// Logs go to stderr unless a file is configured so stdout carries only
	// the chart.
	zc.OutputPaths = []string{"stderr"}
	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		}
		_ = file.Close()

		zc.OutputPaths = []string{loggingConfig.OutputFile}
		zc.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return zc.Build()
}

// renderer writes charts to out in one format.
type renderer struct {
	out    io.Writer
	format string
}

func (r *renderer) render(c *chart.Chart) error {
	switch r.format {
	case constants.OutputFormatCSV:
		return output.CsvFormat(r.out, c)
	case constants.OutputFormatJSON:
		return output.JSONFormat(r.out, c)
	default:
		return output.PrettyFormat(r.out, c)
	}
}

// newRenderingSession returns a session that renders every published chart.
// Rendering happens in the publish step so a superseded chart can never be
// written after a newer one.
func newRenderingSession(src source.Source, logger *zap.Logger, r *renderer) *session.Session {
	sess := session.New(src, logger)
	sess.OnPublish(func(res session.Result) error {
		if res.Chart == nil {
			return nil
		}
		return r.render(res.Chart)
	})
	return sess
}

// refresh charts the range selected by conf. A chart without a trend line is
// still rendered.
func refresh(ctx context.Context, logger *zap.Logger, sess *session.Session, conf *config.Configuration) error {
	start, end, err := conf.Query.Range(time.Now())
	if err != nil {
		return err
	}

	_, err = sess.Refresh(ctx, chart.Query{Start: start, End: end})
	if errors.Is(err, chart.ErrInsufficientData) && !errors.Is(err, session.ErrPublish) {
		logger.Warn("not enough iterations for a trend line",
			zap.String("op", "main.refresh"),
			zap.Error(err),
		)
		return nil
	}
	return err
}

// importDataset loads the dataset file at path into a SQL source.
func importDataset(ctx context.Context, src source.Source, path string) error {
	db, ok := src.(*source.SQLSource)
	if !ok {
		return fmt.Errorf("import requires source type %q", constants.SourceTypeSQL)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	ds, err := source.ParseDataset(f)
	if err != nil {
		return err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	return db.Load(ctx, ds)
}

func main() {
	// Process command line flags first to get config location
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	serverConfigLocation := flag.String("server-config", constants.DefaultServerConfigFile, "path to server configuration file")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv, json")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	watch := flag.Bool("watch", false, "re-render whenever the configuration file changes")
	serve := flag.Bool("serve", false, "serve the chart API instead of printing a chart")
	importPath := flag.String("import", "", "load a dataset file into the sql source and exit")
	flag.Parse()

	// Load the config file to get logging configuration
	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	// Initialize logging based on config and CLI override
	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Determine output format (CLI override takes precedence over config)
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}

	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	// Validate configuration and display any warnings
	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}
	if err := conf.Validate(); err != nil {
		logger.Fatal("invalid configuration",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	src, err := source.New(conf.Source, logger)
	if err != nil {
		logger.Fatal("failed to open data source",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	defer func() {
		_ = src.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *importPath != "" {
		if err := importDataset(ctx, src, *importPath); err != nil {
			logger.Fatal("failed to import dataset",
				zap.String("op", "main.import"),
				zap.String("path", *importPath),
				zap.Error(err),
			)
		}
		return
	}

	if !*serve && !*watch {
		sess := newRenderingSession(src, logger, &renderer{out: os.Stdout, format: outputFormat})
		if err := refresh(ctx, logger, sess, conf); err != nil {
			logger.Fatal("failed to build chart",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)

	// Refreshes run outside the errgroup so a slow source never delays the
	// watcher; they are waited for before the source is closed.
	var refreshes sync.WaitGroup
	var sess *session.Session
	if *watch {
		sess = newRenderingSession(src, logger, &renderer{out: os.Stdout, format: outputFormat})

		run := func(c *config.Configuration) {
			defer refreshes.Done()
			err := refresh(gctx, logger, sess, c)
			switch {
			case err == nil:
			case errors.Is(err, session.ErrSuperseded):
				logger.Debug("chart superseded by a newer selection",
					zap.String("op", "main.watch"),
				)
			default:
				logger.Error("failed to build chart",
					zap.String("op", "main.watch"),
					zap.Error(err),
				)
			}
		}

		refreshes.Add(1)
		go run(conf)
		g.Go(func() error {
			return config.Watch(gctx, logger, *configLocation, func(c *config.Configuration) {
				refreshes.Add(1)
				go run(c)
			})
		})
	}

	if *serve {
		serverConf, err := server.LoadConfig(*serverConfigLocation)
		if err != nil {
			logger.Fatal("failed to load server configuration",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}

		handler := server.NewHandler(logger, src, serverConf.UploadSizeBytes(), version)
		srv := &http.Server{
			Addr:              serverConf.Address,
			Handler:           http.TimeoutHandler(handler, serverConf.RequestTimeout, "request timed out"),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("serving chart API",
				zap.String("op", "main.serve"),
				zap.String("address", serverConf.Address),
				zap.String("version", version),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("exiting",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	if sess != nil {
		sess.Close()
	}
	refreshes.Wait()
}
