package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tinytelemetry/cwrelay/internal/model"
	"github.com/tinytelemetry/cwrelay/internal/pipeline"
)

// invokePath matches the Lambda runtime interface emulator convention so
// existing invoke tooling works against the local server.
const invokePath = "/2015-03-31/functions/function/invocations"

type invokeServer struct {
	addr     string
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
	server   *http.Server
}

func newInvokeServer(addr string, p *pipeline.Pipeline, logger *zap.Logger) *invokeServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &invokeServer{addr: addr, pipeline: p, logger: logger}
}

// Start begins serving invoke requests.
func (s *invokeServer) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	r.POST(invokePath, s.handleInvoke)

	s.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the server.
func (s *invokeServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *invokeServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleInvoke accepts a CloudWatch Logs subscription event in the Lambda
// invoke body format and runs the forwarding pipeline against it.
func (s *invokeServer) handleInvoke(c *gin.Context) {
	var event struct {
		AWSLogs struct {
			Data string `json:"data"`
		} `json:"awslogs"`
	}
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, err := model.DecodeBatch(event.AWSLogs.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ic := model.InvocationContext{
		FunctionName:  "cwrelay-local",
		LogGroupName:  batch.LogGroup,
		LogStreamName: batch.LogStream,
	}
	results, err := s.pipeline.Process(c.Request.Context(), batch, ic)
	if err != nil {
		s.logger.Error("pipeline failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	sent := make([]gin.H, 0, len(results))
	for _, res := range results {
		item := gin.H{"url": res.URL, "status": res.StatusCode}
		if res.Err != nil {
			item["error"] = res.Err.Error()
		}
		sent = append(sent, item)
	}
	c.JSON(http.StatusOK, gin.H{"payloads": sent})
}
