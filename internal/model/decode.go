package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// DecodeBatch decodes the CloudWatch Logs subscription wire format: a
// base64-encoded, gzip-compressed JSON log batch.
func DecodeBatch(data string) (*LogBatch, error) {
	compressed, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding trigger data: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompressing trigger data: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing trigger data: %w", err)
	}

	var batch LogBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("parsing log batch: %w", err)
	}
	return &batch, nil
}
