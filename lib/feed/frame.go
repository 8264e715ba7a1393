// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package feed is the wire format of the console's subscribe stream.
//
// After the subscribe request, the server writes a sequence of CBOR
// [Frame] values on the connection:
//
//	snapshot   the complete collection, compressed and digested
//	heartbeat  sent when idle so the client can detect a dead server
//	error      a terminal failure; the server closes after sending it
//
// Snapshot payloads are the deterministic CBOR encoding of the record
// list, compressed with zstd or LZ4 when that makes them smaller. The
// digest is a keyed BLAKE3 hash of the uncompressed payload; readers
// verify it, and writers use it to skip a snapshot identical to the
// last one sent.
package feed

import (
	"encoding/hex"
	"fmt"
)

// FrameType discriminates frames.
type FrameType string

const (
	FrameSnapshot  FrameType = "snapshot"
	FrameHeartbeat FrameType = "heartbeat"
	FrameError     FrameType = "error"
)

// Frame is one value on the subscribe stream.
type Frame struct {
	Type       FrameType `cbor:"type"`
	Collection string    `cbor:"collection,omitempty"`

	// Sequence numbers snapshots on one stream, starting at 1.
	// Heartbeats repeat the last snapshot's sequence.
	Sequence uint64 `cbor:"sequence,omitempty"`

	Compression Compression `cbor:"compression,omitempty"`

	// Size is the uncompressed payload length.
	Size int `cbor:"size,omitempty"`

	Digest  Digest `cbor:"digest,omitempty"`
	Payload []byte `cbor:"payload,omitempty"`

	// Message is set on error frames.
	Message string `cbor:"message,omitempty"`
}

// Digest is a BLAKE3 fingerprint of a snapshot payload.
type Digest [32]byte

// String returns the digest as lowercase hex.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Short returns the first 12 hex characters, for logs.
func (d Digest) Short() string { return d.String()[:12] }

// IsZero reports whether d is unset.
func (d Digest) IsZero() bool { return d == Digest{} }

// Compression identifies how a payload is compressed. The values are
// part of the wire format.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}
