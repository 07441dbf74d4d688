// Package endpoint resolves ingest destination URLs. The region is chosen
// by the license key's naming convention ("eu"-prefixed keys route to the
// EU cells) unless an explicit override is configured.
package endpoint

import (
	"fmt"
	"strings"

	"github.com/tinytelemetry/cwrelay/internal/model"
)

const (
	usLoggingEndpoint = "https://log-api.newrelic.com/log/v1"
	euLoggingEndpoint = "https://log-api.eu.newrelic.com/log/v1"
	usInfraEndpoint   = "https://cloud-collector.newrelic.com"
	euInfraEndpoint   = "https://cloud-collector.eu01.nr-data.net"

	ingestServiceVersion = "v1"
)

// InfraURL returns the infra sink ingest URL for the entry type: host plus
// a type-specific path segment plus the ingest service version. A non-empty
// overrideHost wins over region selection.
func InfraURL(entryType model.EntryType, overrideHost, licenseKey string) (string, error) {
	host := overrideHost
	if host == "" {
		host = usInfraEndpoint
		if isEULicenseKey(licenseKey) {
			host = euInfraEndpoint
		}
	}
	path, err := infraPath(entryType)
	if err != nil {
		return "", err
	}
	return host + path + "/" + ingestServiceVersion, nil
}

// LoggingURL returns the logging sink ingest URL. A non-empty overrideURL
// wins over region selection.
func LoggingURL(overrideURL, licenseKey string) string {
	if overrideURL != "" {
		return overrideURL
	}
	if isEULicenseKey(licenseKey) {
		return euLoggingEndpoint
	}
	return usLoggingEndpoint
}

func infraPath(entryType model.EntryType) (string, error) {
	switch entryType {
	case model.EntryTypeLambda:
		return "/aws/lambda", nil
	case model.EntryTypeVPC:
		return "/aws/vpc", nil
	case model.EntryTypeOther:
		return "/aws", nil
	}
	return "", fmt.Errorf("no infra ingest path for entry type %q", entryType)
}

func isEULicenseKey(licenseKey string) bool {
	return strings.HasPrefix(licenseKey, "eu")
}
