// cwrelay-local runs the forwarding pipeline behind a local HTTP endpoint
// that mimics the Lambda invoke API, for exercising configuration and
// payload handling without deploying.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/tinytelemetry/cwrelay/internal/config"
	"github.com/tinytelemetry/cwrelay/internal/pipeline"
)

const defaultPort = 9001

func main() {
	var port int
	flag.IntVar(&port, "port", defaultPort, "port for the local invoke endpoint")
	flag.Parse()

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

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	srv := newInvokeServer(addr, pipeline.New(cfg, logger), logger)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting invoke server: %v\n", err)
		os.Exit(1)
	}
	defer srv.Stop()

	printStartupBanner(cfg, addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down.")
}

func newLogger(debug bool) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if !debug {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zapCfg.Build()
}
