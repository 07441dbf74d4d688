package model

import "encoding/json"

// EntryType classifies one delivered log batch. It drives which filtering
// rules apply and which infra ingest path the batch is sent to.
type EntryType string

const (
	EntryTypeLambda EntryType = "lambda"
	EntryTypeVPC    EntryType = "vpc"
	EntryTypeOther  EntryType = "other"
)

// InvocationContext is the execution metadata of the current invocation,
// attached verbatim to outgoing infra envelopes.
type InvocationContext struct {
	FunctionName       string `json:"function_name"`
	InvokedFunctionARN string `json:"invoked_function_arn"`
	LogGroupName       string `json:"log_group_name"`
	LogStreamName      string `json:"log_stream_name"`
}

// LogLine is one delivered log event. Keys other than id, timestamp and
// message are kept in Extra so they survive re-serialization untouched.
type LogLine struct {
	ID        string
	Timestamp int64 // milliseconds since epoch
	Message   string
	Extra     map[string]any
}

// LogBatch is one delivered group of log lines sharing a source group and
// stream. Events order is significant and preserved end-to-end.
type LogBatch struct {
	Owner     string
	LogGroup  string
	LogStream string
	Events    []LogLine
	Extra     map[string]any
}

// WithEvents returns a copy of the batch carrying the given events and the
// same metadata. The events slice is not copied.
func (b *LogBatch) WithEvents(events []LogLine) *LogBatch {
	return &LogBatch{
		Owner:     b.Owner,
		LogGroup:  b.LogGroup,
		LogStream: b.LogStream,
		Events:    events,
		Extra:     b.Extra,
	}
}

func (l LogLine) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(l.Extra)+3)
	for k, v := range l.Extra {
		m[k] = v
	}
	if l.ID != "" {
		m["id"] = l.ID
	}
	m["timestamp"] = l.Timestamp
	m["message"] = l.Message
	return json.Marshal(m)
}

func (l *LogLine) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if raw, ok := m["id"]; ok {
		if err := json.Unmarshal(raw, &l.ID); err != nil {
			return err
		}
		delete(m, "id")
	}
	if raw, ok := m["timestamp"]; ok {
		if err := json.Unmarshal(raw, &l.Timestamp); err != nil {
			return err
		}
		delete(m, "timestamp")
	}
	if raw, ok := m["message"]; ok {
		if err := json.Unmarshal(raw, &l.Message); err != nil {
			return err
		}
		delete(m, "message")
	}
	if len(m) > 0 {
		l.Extra = make(map[string]any, len(m))
		for k, raw := range m {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			l.Extra[k] = v
		}
	}
	return nil
}

func (b LogBatch) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(b.Extra)+4)
	for k, v := range b.Extra {
		m[k] = v
	}
	if b.Owner != "" {
		m["owner"] = b.Owner
	}
	m["logGroup"] = b.LogGroup
	m["logStream"] = b.LogStream
	m["logEvents"] = b.Events
	return json.Marshal(m)
}

func (b *LogBatch) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	fields := map[string]any{
		"owner":     &b.Owner,
		"logGroup":  &b.LogGroup,
		"logStream": &b.LogStream,
		"logEvents": &b.Events,
	}
	for key, dst := range fields {
		if raw, ok := m[key]; ok {
			if err := json.Unmarshal(raw, dst); err != nil {
				return err
			}
			delete(m, key)
		}
	}
	if len(m) > 0 {
		b.Extra = make(map[string]any, len(m))
		for k, raw := range m {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			b.Extra[k] = v
		}
	}
	return nil
}
