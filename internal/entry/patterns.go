package entry

import "regexp"

// Default log group prefixes for classification. Both can be overridden via
// configuration for non-standard group naming schemes.
const (
	DefaultLambdaLogGroupPrefix = "/aws/lambda"
	DefaultVPCLogGroupPrefix    = "/aws/vpc/flow-logs"
)

var (
	// Agent hand-off lines look like ["1","NR_LAMBDA_MONITORING","<b64 gzip>"].
	// The marker must appear on the first line of the message.
	monitoringPattern = regexp.MustCompile(`\A[^\n]*"NR_LAMBDA_MONITORING`)

	reportPattern = regexp.MustCompile(`\AREPORT RequestId:`)

	timeoutPattern = regexp.MustCompile(
		`\A\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}.\d+Z\s[\d\w-]+\sTask timed out after [\d.]+ seconds`)

	// Emitted by the Lambda service when it kills the runtime, e.g. on OOM.
	runtimeExitPattern = regexp.MustCompile(`(?s)\ARequestId:\s[-a-zA-Z0-9]{36}\s`)

	requestIDPattern = regexp.MustCompile(
		`RequestId:\s([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)
)

// IsMonitoringMessage reports whether the message carries an agent
// monitoring marker.
func IsMonitoringMessage(message string) bool {
	return monitoringPattern.MatchString(message)
}

// IsSignificantLambdaMessage matches messages that are sufficient on their
// own to report a Lambda invocation. REPORT lines are not sufficient, just
// nice to have.
func IsSignificantLambdaMessage(message string) bool {
	return monitoringPattern.MatchString(message) ||
		timeoutPattern.MatchString(message) ||
		runtimeExitPattern.MatchString(message)
}

// ExtractRequestID returns the first UUID-shaped execution request id in the
// message, searching anywhere for a "RequestId: <uuid>" occurrence.
func ExtractRequestID(message string) (string, bool) {
	m := requestIDPattern.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	return m[1], true
}
