// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Content-Encoding values the checkpoint service may use for record
// batches. Anything else is rejected.
const (
	EncodingIdentity = ""
	EncodingZstd     = "zstd"
	EncodingLZ4      = "lz4"
)

// acceptEncoding is sent with every request.
const acceptEncoding = EncodingZstd + ", " + EncodingLZ4

// decodingReader wraps body according to its Content-Encoding. The
// returned close function releases decoder state and must be called.
func decodingReader(encoding string, body io.Reader) (io.Reader, func(), error) {
	switch encoding {
	case EncodingIdentity, "identity":
		return body, func() {}, nil
	case EncodingZstd:
		decoder, err := zstd.NewReader(body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return decoder, decoder.Close, nil
	case EncodingLZ4:
		return lz4.NewReader(body), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// EncodeBody compresses data for the named encoding.
func EncodeBody(encoding string, data []byte) ([]byte, error) {
	switch encoding {
	case EncodingIdentity:
		return data, nil
	case EncodingZstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, nil), nil
	case EncodingLZ4:
		var buffer bytes.Buffer
		writer := lz4.NewWriter(&buffer)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buffer.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
