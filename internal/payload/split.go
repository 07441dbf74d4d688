package payload

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// MaxPayloadSize is the ingest backend's hard ceiling on one compressed
// request body.
const MaxPayloadSize = 1000 * 1024

// Payload is one sink-specific request body that the splitter can halve by
// line count when its compressed form is oversized. Concrete payloads
// marshal to their wire JSON.
type Payload interface {
	// Lines returns the number of log lines carried.
	Lines() int
	// Split halves the payload by line count (integer floor), keeping the
	// shared envelope on both halves.
	Split() (Payload, Payload)
}

// Generate compresses the payload and, when it exceeds the size ceiling,
// keeps halving it until every fragment fits. Fragments come back in the
// original line order. A single line whose compressed form still exceeds
// the ceiling cannot be reduced and is reported as an error.
func Generate(p Payload) ([][]byte, error) {
	return generate(p, MaxPayloadSize)
}

func generate(p Payload, limit int) ([][]byte, error) {
	var out [][]byte

	work := []Payload{p}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]

		compressed, err := compress(cur)
		if err != nil {
			return nil, err
		}
		if len(compressed) < limit {
			out = append(out, compressed)
			continue
		}
		if cur.Lines() <= 1 {
			return nil, fmt.Errorf("payload of %d compressed bytes exceeds the %d byte limit and cannot be split further", len(compressed), limit)
		}
		left, right := cur.Split()
		// LIFO: push right first so left is processed next.
		work = append(work, right, left)
	}
	return out, nil
}

func compress(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	return buf.Bytes(), nil
}
