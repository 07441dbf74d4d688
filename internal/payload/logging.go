package payload

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/tinytelemetry/cwrelay/internal/entry"
	"github.com/tinytelemetry/cwrelay/internal/model"
)

// PluginVersion identifies this forwarder release in the structured-log
// common attributes.
const PluginVersion = "2.9.4"

// LogMessage is one structured log line in the logging sink wire format.
type LogMessage struct {
	Message    string         `json:"message"`
	Timestamp  int64          `json:"timestamp"`
	TraceID    string         `json:"trace.id,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

// LoggingPayload is the structured-log request body: a single-element array
// of {common, logs} groups sharing one common attribute block.
type LoggingPayload struct {
	Common map[string]any
	Logs   []LogMessage
}

type logGroup struct {
	Common map[string]any `json:"common"`
	Logs   []LogMessage   `json:"logs"`
}

func (p LoggingPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal([]logGroup{{Common: p.Common, Logs: p.Logs}})
}

// Lines implements Payload.
func (p LoggingPayload) Lines() int { return len(p.Logs) }

// Split implements Payload, halving the logs under the shared common block.
func (p LoggingPayload) Split() (Payload, Payload) {
	half := len(p.Logs) / 2
	return LoggingPayload{p.Common, p.Logs[:half]}, LoggingPayload{p.Common, p.Logs[half:]}
}

// Packager builds LoggingPayloads from delivered batches.
type Packager struct {
	lambdaPrefix string
	tags         map[string]string
	logger       *zap.Logger
}

// NewPackager creates a structured-log packager. Tags are merged into the
// common attributes of every payload; the Lambda prefix gates request id
// extraction.
func NewPackager(lambdaPrefix string, tags map[string]string, logger *zap.Logger) *Packager {
	if lambdaPrefix == "" {
		lambdaPrefix = entry.DefaultLambdaLogGroupPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Packager{lambdaPrefix: lambdaPrefix, tags: tags, logger: logger}
}

// Package reshapes a batch into the logging sink format. The most recently
// seen execution request id and agent trace id stick to every subsequent
// message in the batch.
func (p *Packager) Package(batch *model.LogBatch) LoggingPayload {
	isLambdaGroup := strings.HasPrefix(batch.LogGroup, p.lambdaPrefix)

	logs := make([]LogMessage, 0, len(batch.Events))
	var lastRequestID, traceID string
	for _, ev := range batch.Events {
		if entry.IsMonitoringMessage(ev.Message) {
			traceID = p.extractTraceID(ev.Message)
		}

		awsAttrs := map[string]any{}
		msg := LogMessage{
			Message:    ev.Message,
			Timestamp:  ev.Timestamp,
			TraceID:    traceID,
			Attributes: map[string]any{"aws": awsAttrs},
		}
		for k, v := range ev.Extra {
			msg.Attributes[k] = v
		}

		if isLambdaGroup {
			if id, ok := entry.ExtractRequestID(ev.Message); ok {
				lastRequestID = id
			}
			if lastRequestID != "" {
				awsAttrs["lambda_request_id"] = lastRequestID
			}
		}

		logs = append(logs, msg)
	}

	common := map[string]any{
		"plugin": map[string]any{"type": "lambda", "version": PluginVersion},
		"aws": map[string]any{
			"logGroup":  batch.LogGroup,
			"logStream": batch.LogStream,
		},
	}
	for k, v := range p.tags {
		common[k] = v
	}

	return LoggingPayload{
		Common: map[string]any{"attributes": common},
		Logs:   logs,
	}
}

// ParseTags parses a delimited key:value tag list. Entries in the reserved
// aws: and plugin: namespaces are dropped, as are entries without a colon.
func ParseTags(tags, delimiter string) map[string]string {
	if tags == "" {
		return nil
	}
	if delimiter == "" {
		delimiter = ";"
	}
	parsed := make(map[string]string)
	for _, item := range strings.Split(tags, delimiter) {
		if strings.HasPrefix(item, "aws:") || strings.HasPrefix(item, "plugin:") {
			continue
		}
		key, value, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		parsed[key] = value
	}
	return parsed
}
