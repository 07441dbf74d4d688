package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/tinytelemetry/cwrelay/internal/config"
	"github.com/tinytelemetry/cwrelay/internal/pipeline"
)

// Build variables - set by ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.DebugLogging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Debug("starting forwarder", zap.String("version", version), zap.String("commit", commit))

	h := newHandler(cfg, pipeline.New(cfg, logger), logger)
	lambda.Start(h.Handle)
}

// newLogger builds the process logger. Lambda collects stderr line by line,
// so the production JSON encoder fits as-is.
func newLogger(debug bool) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if debug {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zapCfg.Build()
}
