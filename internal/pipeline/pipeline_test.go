package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/tinytelemetry/cwrelay/internal/config"
	"github.com/tinytelemetry/cwrelay/internal/dispatch"
	"github.com/tinytelemetry/cwrelay/internal/model"
)

const monitoringLine = `[1,"NR_LAMBDA_MONITORING","H4sIAAAAAAAAA6tWMjYyMDUyMjSzVLIyMDIwMLJWUkrOz8nJTC7JzM9TsgIA+BYHrCEAAAA="]`

// sinkRecorder captures every request body a test server receives.
type sinkRecorder struct {
	mu     sync.Mutex
	bodies [][]byte
	header http.Header
	status int
}

func newSink(t *testing.T, status int) (*httptest.Server, *sinkRecorder) {
	t.Helper()
	rec := &sinkRecorder{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, body)
		rec.header = r.Header.Clone()
		rec.mu.Unlock()
		w.WriteHeader(rec.status)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func (r *sinkRecorder) decode(t *testing.T, i int, into any) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.bodies) {
		t.Fatalf("sink saw %d bodies, want at least %d", len(r.bodies), i+1)
	}
	zr, err := gzip.NewReader(bytes.NewReader(r.bodies[i]))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
}

func fastDispatcher() *dispatch.Dispatcher {
	d := dispatch.New(nil)
	d.InitialBackoff = time.Millisecond
	d.RequestTimeout = 500 * time.Millisecond
	return d
}

func lambdaBatch(messages ...string) *model.LogBatch {
	events := make([]model.LogLine, 0, len(messages))
	for i, msg := range messages {
		events = append(events, model.LogLine{ID: "1", Timestamp: int64(1548935491174 + i), Message: msg})
	}
	return &model.LogBatch{
		Owner:     "123456789012",
		LogGroup:  "/aws/lambda/sam-node-test-dev-triggered",
		LogStream: "2019/01/31/[$LATEST]fe9b",
		Events:    events,
	}
}

func testContext() model.InvocationContext {
	return model.InvocationContext{
		FunctionName:       "forwarder",
		InvokedFunctionARN: "arn:aws:lambda:us-east-1:123456789012:function:forwarder",
		LogGroupName:       "/aws/lambda/forwarder",
		LogStreamName:      "2019/01/31/[$LATEST]aaaa",
	}
}

type infraBody struct {
	Context model.InvocationContext `json:"context"`
	Entry   string                  `json:"entry"`
}

func TestProcessForwardsFilteredLambdaLinesToInfra(t *testing.T) {
	t.Parallel()

	srv, rec := newSink(t, http.StatusAccepted)

	cfg := config.Config{
		InfraEnabled:  true,
		LicenseKey:    "a-license-key",
		InfraEndpoint: srv.URL,
	}
	p := New(cfg, nil, WithDispatcher(fastDispatcher()))

	batch := lambdaBatch(
		"START RequestId: b3c55437-3847-4230-a1ed-0e94425372e8 Version: $LATEST",
		monitoringLine,
		"application noise",
		"REPORT RequestId: b3c55437-3847-4230-a1ed-0e94425372e8 Duration: 3.29 ms")

	results, err := p.Process(context.Background(), batch, testContext())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}

	var body infraBody
	rec.decode(t, 0, &body)
	if body.Context.FunctionName != "forwarder" {
		t.Fatalf("Context.FunctionName = %q, want forwarder", body.Context.FunctionName)
	}

	var entry model.LogBatch
	if err := json.Unmarshal([]byte(body.Entry), &entry); err != nil {
		t.Fatalf("Unmarshal entry: %v", err)
	}
	// Only the agent hand-off and the REPORT line survive the filter.
	if len(entry.Events) != 2 {
		t.Fatalf("len(entry.Events) = %d, want 2", len(entry.Events))
	}
	if entry.Events[0].Message != monitoringLine {
		t.Fatalf("Events[0].Message = %q, want the monitoring line", entry.Events[0].Message)
	}

	if got := rec.header.Get("X-License-Key"); got != "a-license-key" {
		t.Fatalf("X-License-Key = %q, want a-license-key", got)
	}
	if got := rec.header.Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
}

func TestProcessForwardsWholeBatchToLogging(t *testing.T) {
	t.Parallel()

	srv, rec := newSink(t, http.StatusAccepted)

	cfg := config.Config{
		LoggingEnabled:  true,
		LicenseKey:      "a-license-key",
		LoggingEndpoint: srv.URL,
	}
	p := New(cfg, nil, WithDispatcher(fastDispatcher()))

	batch := lambdaBatch("line one", "line two", "line three")
	if _, err := p.Process(context.Background(), batch, testContext()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	var body []struct {
		Common map[string]any   `json:"common"`
		Logs   []map[string]any `json:"logs"`
	}
	rec.decode(t, 0, &body)
	if len(body) != 1 {
		t.Fatalf("len(body) = %d, want 1", len(body))
	}
	// No filtering on the logging path.
	if len(body[0].Logs) != 3 {
		t.Fatalf("len(Logs) = %d, want 3", len(body[0].Logs))
	}
	if got := rec.header.Get("X-Event-Source"); got != "logs" {
		t.Fatalf("X-Event-Source = %q, want logs", got)
	}
}

func TestProcessBothSinks(t *testing.T) {
	t.Parallel()

	infraSrv, infraRec := newSink(t, http.StatusAccepted)
	logSrv, logRec := newSink(t, http.StatusAccepted)

	cfg := config.Config{
		InfraEnabled:    true,
		LoggingEnabled:  true,
		LicenseKey:      "a-license-key",
		InfraEndpoint:   infraSrv.URL,
		LoggingEndpoint: logSrv.URL,
	}
	p := New(cfg, nil, WithDispatcher(fastDispatcher()))

	results, err := p.Process(context.Background(),
		lambdaBatch("REPORT RequestId: b3c55437-3847-4230-a1ed-0e94425372e8"), testContext())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if len(infraRec.bodies) != 1 || len(logRec.bodies) != 1 {
		t.Fatalf("sink bodies = %d infra, %d logging, want 1 each", len(infraRec.bodies), len(logRec.bodies))
	}
}

func TestProcessLoggingFailureIsTolerated(t *testing.T) {
	t.Parallel()

	infraSrv, _ := newSink(t, http.StatusAccepted)
	logSrv, _ := newSink(t, http.StatusBadRequest)

	cfg := config.Config{
		InfraEnabled:    true,
		LoggingEnabled:  true,
		InfraEndpoint:   infraSrv.URL,
		LoggingEndpoint: logSrv.URL,
	}
	p := New(cfg, nil, WithDispatcher(fastDispatcher()))

	results, err := p.Process(context.Background(), lambdaBatch("a line"), testContext())
	if err != nil {
		t.Fatalf("Process = %v, want nil when only the logging sink fails", err)
	}

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("%d failed results, want 1", failed)
	}
}

func TestProcessInfraFailureAborts(t *testing.T) {
	t.Parallel()

	infraSrv, _ := newSink(t, http.StatusForbidden)

	cfg := config.Config{
		InfraEnabled:  true,
		InfraEndpoint: infraSrv.URL,
	}
	p := New(cfg, nil, WithDispatcher(fastDispatcher()))

	if _, err := p.Process(context.Background(), lambdaBatch("a line"), testContext()); err == nil {
		t.Fatal("Process returned nil error for a failing infra sink")
	}
}

func TestProcessVPCBatchRoutesToVPCPath(t *testing.T) {
	t.Parallel()

	srv, rec := newSink(t, http.StatusAccepted)

	cfg := config.Config{
		InfraEnabled:  true,
		InfraEndpoint: srv.URL,
	}
	p := New(cfg, nil, WithDispatcher(fastDispatcher()))

	batch := lambdaBatch("2 123456789012 eni-abc123 ACCEPT OK")
	batch.LogGroup = "/aws/vpc/flow-logs"

	results, err := p.Process(context.Background(), batch, testContext())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if want := srv.URL + "/aws/vpc/v1"; results[0].URL != want {
		t.Fatalf("URL = %q, want %q", results[0].URL, want)
	}

	var body infraBody
	rec.decode(t, 0, &body)
	var entry model.LogBatch
	if err := json.Unmarshal([]byte(body.Entry), &entry); err != nil {
		t.Fatalf("Unmarshal entry: %v", err)
	}
	// VPC batches are forwarded unfiltered.
	if len(entry.Events) != 1 {
		t.Fatalf("len(entry.Events) = %d, want 1", len(entry.Events))
	}
}
