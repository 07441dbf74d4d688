// Package pipeline wires classification, packaging, splitting and dispatch
// into the transform-and-forward path run once per invocation.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tinytelemetry/cwrelay/internal/config"
	"github.com/tinytelemetry/cwrelay/internal/dispatch"
	"github.com/tinytelemetry/cwrelay/internal/endpoint"
	"github.com/tinytelemetry/cwrelay/internal/entry"
	"github.com/tinytelemetry/cwrelay/internal/license"
	"github.com/tinytelemetry/cwrelay/internal/model"
	"github.com/tinytelemetry/cwrelay/internal/payload"
)

// Pipeline transforms decoded log batches into sink payloads and forwards
// them. One Pipeline serves the whole process; every Process call takes a
// fresh configuration-derived state snapshot along for the ride.
type Pipeline struct {
	cfg        config.Config
	classifier *entry.Classifier
	packager   *payload.Packager
	dispatcher *dispatch.Dispatcher
	licenses   *license.Resolver
	logger     *zap.Logger
}

// Option customizes a Pipeline, mainly for injecting fakes in tests.
type Option func(*Pipeline)

// WithDispatcher injects the dispatcher.
func WithDispatcher(d *dispatch.Dispatcher) Option { return func(p *Pipeline) { p.dispatcher = d } }

// WithLicenseResolver injects the license key resolver.
func WithLicenseResolver(r *license.Resolver) Option { return func(p *Pipeline) { p.licenses = r } }

// New builds a Pipeline from the configuration snapshot.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:        cfg,
		classifier: entry.NewClassifier(cfg.LambdaLogGroupPrefix, cfg.VPCLogGroupPrefix),
		logger:     logger,
	}
	p.packager = payload.NewPackager(
		p.classifier.LambdaPrefix(),
		payload.ParseTags(cfg.Tags, cfg.TagDelimiter),
		logger,
	)
	for _, opt := range opts {
		opt(p)
	}
	if p.dispatcher == nil {
		p.dispatcher = dispatch.New(logger)
	}
	if p.licenses == nil {
		p.licenses = license.NewResolver(
			license.Source(cfg.LicenseKeySource), cfg.LicenseKey, cfg.CachingEnabled, logger)
	}
	return p
}

// Process classifies the batch, packages it for every enabled sink, splits
// oversized payloads, and dispatches all fragments concurrently. Infra sink
// failures abort the invocation; logging sink failures are reported in the
// results but tolerated.
func (p *Pipeline) Process(ctx context.Context, batch *model.LogBatch, ic model.InvocationContext) ([]dispatch.Result, error) {
	// Key resolution happens once, before fan-out.
	licenseKey, err := p.licenses.Resolve(ctx, "")
	if err != nil {
		return nil, err
	}

	entryType := p.classifier.Classify(batch)

	var reqs []dispatch.Request
	if p.cfg.InfraEnabled {
		infraReqs, err := p.infraRequests(entryType, batch, ic, licenseKey)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, infraReqs...)
	}
	if p.cfg.LoggingEnabled {
		loggingReqs, err := p.loggingRequests(batch, licenseKey)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, loggingReqs...)
	}

	p.logger.Debug("sending payloads",
		zap.String("entry_type", string(entryType)),
		zap.Int("payloads", len(reqs)))
	return p.dispatcher.SendAll(ctx, reqs)
}

func (p *Pipeline) infraRequests(entryType model.EntryType, batch *model.LogBatch, ic model.InvocationContext, licenseKey string) ([]dispatch.Request, error) {
	// Lambda entries carry a lot of application noise; only forward the
	// lines that report the invocation.
	if entryType == model.EntryTypeLambda {
		batch = p.classifier.FilterSignificantLines(batch)
	}

	fragments, err := payload.Generate(payload.NewInfraPayload(ic, batch))
	if err != nil {
		return nil, fmt.Errorf("packaging infra payload: %w", err)
	}
	url, err := endpoint.InfraURL(entryType, p.cfg.InfraEndpoint, licenseKey)
	if err != nil {
		return nil, err
	}

	reqs := make([]dispatch.Request, 0, len(fragments))
	for _, body := range fragments {
		reqs = append(reqs, dispatch.Request{
			URL: url,
			Headers: map[string]string{
				"X-License-Key":    licenseKey,
				"Content-Encoding": "gzip",
			},
			Body:     body,
			Critical: true,
		})
	}
	return reqs, nil
}

func (p *Pipeline) loggingRequests(batch *model.LogBatch, licenseKey string) ([]dispatch.Request, error) {
	fragments, err := payload.Generate(p.packager.Package(batch))
	if err != nil {
		return nil, fmt.Errorf("packaging logging payload: %w", err)
	}
	url := endpoint.LoggingURL(p.cfg.LoggingEndpoint, licenseKey)

	reqs := make([]dispatch.Request, 0, len(fragments))
	for _, body := range fragments {
		reqs = append(reqs, dispatch.Request{
			URL: url,
			Headers: map[string]string{
				"X-License-Key":    licenseKey,
				"X-Event-Source":   "logs",
				"Content-Encoding": "gzip",
			},
			Body: body,
		})
	}
	return reqs, nil
}
