package msl

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
)

// Compression algorithm identifiers recognized in a payload chunk's
// compressionalgo field (spec.md §3 "Payload Chunk").
const (
	CompressionNone  = ""
	CompressionGZIP  = "GZIP"
	CompressionFlate = "LZW" // the name is historical; the wire format is DEFLATE
)

// decompress inflates data per algo, or returns it unchanged for
// CompressionNone. Unknown algorithms are a message format error — a chunk
// the sender tagged with a scheme we don't support isn't recoverable, so
// chunkstream.go reports it as MESSAGE_FORMAT_ERROR, which ends the stream.
func decompress(algo string, data []byte) ([]byte, error) {
	switch algo {
	case CompressionNone:
		return data, nil
	case CompressionGZIP:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case CompressionFlate:
		fr := flate.NewReader(bytes.NewReader(data))
		defer fr.Close()
		return io.ReadAll(fr)
	default:
		return nil, fmt.Errorf("msl: unrecognized compression algorithm %q", algo)
	}
}

// compress is the send-side counterpart; out of the core's scope (spec.md
// §1) but kept alongside decompress since both sides of a supplemented
// feature belong in one place, and test fixtures need a way to produce
// compressed chunks.
func compress(algo string, data []byte) ([]byte, error) {
	switch algo {
	case CompressionNone:
		return data, nil
	case CompressionGZIP:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionFlate:
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, err
		}
		if err := fw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("msl: unrecognized compression algorithm %q", algo)
	}
}
