package cache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Payloads above this size are stored gzip-compressed with a "gz:"
// prefix. Small entries skip compression: the header would outweigh the
// savings.
const compressThreshold = 1024

var gzPrefix = []byte("gz:")

func encodePayload(data []byte) []byte {
	if len(data) < compressThreshold {
		return data
	}
	var buf bytes.Buffer
	buf.Write(gzPrefix)
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return data
	}
	if err := w.Close(); err != nil {
		return data
	}
	if buf.Len() >= len(data) {
		// Incompressible payload, store it raw.
		return data
	}
	return buf.Bytes()
}

func decodePayload(stored []byte) ([]byte, error) {
	if !bytes.HasPrefix(stored, gzPrefix) {
		return stored, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(stored[len(gzPrefix):]))
	if err != nil {
		return nil, fmt.Errorf("corrupt compressed cache entry: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("corrupt compressed cache entry: %w", err)
	}
	return out, nil
}
