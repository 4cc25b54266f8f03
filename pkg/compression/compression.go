// Package compression names the byte-stream codec for the Parquet writer's
// row groups and provides Compress/Decompress for each codec; the Kafka
// writer maps its own compression setting to Sarama's codecs and does not
// use this package. Adapted from the
// teacher's HTTP compression negotiator, generalized from "pick a
// Content-Encoding for a response" to "pick a codec for a configured
// writer", backed by the same compression libraries.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names a supported compression algorithm.
type Codec string

const (
	None Codec = "none"
	Gzip Codec = "gzip"
	Zstd Codec = "zstd"
	Snap Codec = "snappy"
	LZ4  Codec = "lz4"
)

// Compress returns data compressed with codec.
func Compress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case None, "":
		return data, nil
	case Gzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("compression: gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("compression: gzip close: %w", err)
		}
		return buf.Bytes(), nil
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("compression: zstd writer: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case Snap:
		return snappy.Encode(nil, data), nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("compression: lz4 write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("compression: lz4 close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("compression: unsupported codec %q", codec)
	}
}

// Decompress reverses Compress.
func Decompress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case None, "":
		return data, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("compression: gzip reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case Zstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("compression: zstd reader: %w", err)
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case Snap:
		return snappy.Decode(nil, data)
	case LZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("compression: unsupported codec %q", codec)
	}
}

// Ratio returns compressed/uncompressed, 1.0 when uncompressed is empty.
func Ratio(uncompressed, compressed int) float64 {
	if uncompressed == 0 {
		return 1.0
	}
	return float64(compressed) / float64(uncompressed)
}
