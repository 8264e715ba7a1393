// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Mode is the configured compression policy for a writer.
type Mode string

const (
	// ModeAuto probes each payload and picks zstd, LZ4, or nothing
	// by compression ratio.
	ModeAuto Mode = "auto"
	ModeZstd Mode = "zstd"
	ModeLZ4  Mode = "lz4"
	ModeNone Mode = "none"
)

// ParseMode validates a configured compression mode. Empty means auto.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeZstd, ModeLZ4, ModeNone:
		return Mode(name), nil
	default:
		return "", fmt.Errorf("unknown compression mode %q (want auto, zstd, lz4, or none)", name)
	}
}

// probeMinimum is the payload size below which compression is not
// attempted; frame overhead dominates.
const probeMinimum = 256

var errIncompressible = errors.New("payload is incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("feed: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("feed: zstd decoder initialization failed: " + err.Error())
	}
}

// compress applies mode to payload and reports the algorithm used.
// When compression would not shrink the payload, it is returned as is
// with CompressionNone.
func compress(payload []byte, mode Mode) ([]byte, Compression, error) {
	algorithm := CompressionNone
	switch mode {
	case ModeNone:
	case ModeZstd:
		algorithm = CompressionZstd
	case ModeLZ4:
		algorithm = CompressionLZ4
	case ModeAuto, "":
		algorithm = selectCompression(payload)
	default:
		return nil, 0, fmt.Errorf("unknown compression mode %q", mode)
	}

	var compressed []byte
	var err error
	switch algorithm {
	case CompressionNone:
		return payload, CompressionNone, nil
	case CompressionZstd:
		compressed, err = compressZstd(payload)
	case CompressionLZ4:
		compressed, err = compressLZ4(payload)
	}
	if errors.Is(err, errIncompressible) {
		return payload, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, algorithm, nil
}

// selectCompression probes with zstd: at least 1.5x picks zstd,
// 1.1x to 1.5x picks the cheaper LZ4, anything less is not worth it.
func selectCompression(payload []byte) Compression {
	if len(payload) < probeMinimum {
		return CompressionNone
	}
	probe := zstdEncoder.EncodeAll(payload, nil)
	ratio := float64(len(payload)) / float64(len(probe))
	switch {
	case ratio >= 1.5:
		return CompressionZstd
	case ratio >= 1.1:
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// decompress reverses compress. size must equal the original length.
func decompress(data []byte, algorithm Compression, size int) ([]byte, error) {
	switch algorithm {
	case CompressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("payload is %d bytes, frame says %d", len(data), size)
		}
		return data, nil
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return destination, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", algorithm)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}
