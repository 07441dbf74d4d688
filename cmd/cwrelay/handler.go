package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"github.com/tinytelemetry/cwrelay/internal/config"
	"github.com/tinytelemetry/cwrelay/internal/model"
	"github.com/tinytelemetry/cwrelay/internal/pipeline"
)

type handler struct {
	cfg      config.Config
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

func newHandler(cfg config.Config, p *pipeline.Pipeline, logger *zap.Logger) *handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &handler{cfg: cfg, pipeline: p, logger: logger}
}

// Handle is the Lambda entry point. It decodes the CloudWatch Logs trigger
// payload, runs the pipeline, and returns the original event so the
// function can be chained with other consumers via a success destination.
func (h *handler) Handle(ctx context.Context, event events.CloudwatchLogsEvent) (events.CloudwatchLogsEvent, error) {
	// The lambda-go decoder drops unknown log event fields, which have to
	// survive into the logging sink attributes, so decode by hand.
	batch, err := model.DecodeBatch(event.AWSLogs.Data)
	if err != nil {
		return event, err
	}

	fields := []zap.Field{
		zap.String("log_group", batch.LogGroup),
		zap.String("log_stream", batch.LogStream),
	}
	if len(batch.Events) > 0 {
		fields = append(fields, zap.Time("first_event", time.UnixMilli(batch.Events[0].Timestamp)))
	}
	h.logger.Debug("received log batch", fields...)

	if _, err := h.pipeline.Process(ctx, batch, invocationContext(ctx)); err != nil {
		return event, err
	}
	return event, nil
}

// invocationContext collects execution metadata from the Lambda runtime.
func invocationContext(ctx context.Context) model.InvocationContext {
	ic := model.InvocationContext{
		FunctionName:  lambdacontext.FunctionName,
		LogGroupName:  lambdacontext.LogGroupName,
		LogStreamName: lambdacontext.LogStreamName,
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		ic.InvokedFunctionARN = lc.InvokedFunctionArn
	}
	return ic
}
