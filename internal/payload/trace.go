package payload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// extractTraceID best-effort decodes an agent monitoring line and pulls the
// trace id out of its event data. Any decode failure yields an empty id,
// never an error.
func (p *Packager) extractTraceID(message string) string {
	id, err := decodeMonitoringTraceID(message)
	if err != nil {
		p.logger.Debug("failed to decode monitoring payload")
		return ""
	}
	if id == "" {
		p.logger.Debug("no trace id found in monitoring payload")
	}
	return id
}

// decodeMonitoringTraceID unwraps a monitoring message. The message is a
// JSON tuple [version, "NR_LAMBDA_MONITORING", base64(gzip(JSON))]; the
// inner document carries event rows under data.analytic_event_data, with
// span_event_data as a fallback.
func decodeMonitoringTraceID(message string) (string, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal([]byte(message), &tuple); err != nil {
		return "", err
	}
	if len(tuple) < 3 {
		return "", fmt.Errorf("monitoring tuple has %d elements, want 3", len(tuple))
	}
	var encoded string
	if err := json.Unmarshal(tuple[2], &encoded); err != nil {
		return "", err
	}

	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", err
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", err
	}

	var doc struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", err
	}

	if id := eventTraceID(doc.Data, "analytic_event_data"); id != "" {
		return id, nil
	}
	return eventTraceID(doc.Data, "span_event_data"), nil
}

// eventTraceID reads data[key][2][0][0]["traceId"], tolerating any missing
// or misshapen level.
func eventTraceID(data map[string]any, key string) string {
	section, ok := data[key].([]any)
	if !ok || len(section) < 3 {
		return ""
	}
	rows, ok := section[2].([]any)
	if !ok || len(rows) == 0 {
		return ""
	}
	row, ok := rows[0].([]any)
	if !ok || len(row) == 0 {
		return ""
	}
	event, ok := row[0].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := event["traceId"].(string)
	return id
}
