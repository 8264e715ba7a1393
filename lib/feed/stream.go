// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/console/lib/codec"
	"github.com/bureau-foundation/console/lib/collection"
)

// Writer encodes frames for one stream. Not safe for concurrent use.
type Writer struct {
	encoder    *codec.Encoder
	collection string
	mode       Mode
	sequence   uint64
	last       Digest
}

// NewWriter returns a Writer for a stream carrying one collection.
func NewWriter(w io.Writer, collectionName string, mode Mode) *Writer {
	return &Writer{
		encoder:    codec.NewEncoder(w),
		collection: collectionName,
		mode:       mode,
	}
}

// WriteSnapshot sends records as a snapshot frame. If the encoded
// payload is identical to the last snapshot sent, nothing is written
// and sent is false.
func (w *Writer) WriteSnapshot(records []collection.Record) (sent bool, err error) {
	if records == nil {
		records = []collection.Record{}
	}
	payload, err := codec.Marshal(records)
	if err != nil {
		return false, fmt.Errorf("encoding snapshot: %w", err)
	}
	digest := Sum(payload)
	if w.sequence > 0 && digest == w.last {
		return false, nil
	}

	compressed, algorithm, err := compress(payload, w.mode)
	if err != nil {
		return false, err
	}
	w.sequence++
	frame := Frame{
		Type:        FrameSnapshot,
		Collection:  w.collection,
		Sequence:    w.sequence,
		Compression: algorithm,
		Size:        len(payload),
		Digest:      digest,
		Payload:     compressed,
	}
	if err := w.encoder.Encode(frame); err != nil {
		return false, err
	}
	w.last = digest
	return true, nil
}

// WriteHeartbeat sends a heartbeat frame.
func (w *Writer) WriteHeartbeat() error {
	return w.encoder.Encode(Frame{Type: FrameHeartbeat, Collection: w.collection, Sequence: w.sequence})
}

// WriteError sends a terminal error frame.
func (w *Writer) WriteError(message string) error {
	return w.encoder.Encode(Frame{Type: FrameError, Collection: w.collection, Message: message})
}

// Sequence returns the number of snapshots sent.
func (w *Writer) Sequence() uint64 { return w.sequence }

// Reader decodes frames from one stream.
type Reader struct {
	decoder *codec.Decoder
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{decoder: codec.NewDecoder(r)}
}

// Next reads the next frame.
func (r *Reader) Next() (Frame, error) {
	var frame Frame
	if err := r.decoder.Decode(&frame); err != nil {
		return Frame{}, err
	}
	return frame, nil
}

// Records decompresses and verifies a snapshot frame's payload and
// decodes the records.
func Records(frame Frame) ([]collection.Record, error) {
	if frame.Type != FrameSnapshot {
		return nil, fmt.Errorf("frame type %q carries no records", frame.Type)
	}
	payload, err := decompress(frame.Payload, frame.Compression, frame.Size)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", frame.Sequence, err)
	}
	if digest := Sum(payload); digest != frame.Digest {
		return nil, fmt.Errorf("snapshot %d: digest mismatch (frame %s, payload %s)", frame.Sequence, frame.Digest.Short(), digest.Short())
	}
	var records []collection.Record
	if err := codec.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("snapshot %d: decoding records: %w", frame.Sequence, err)
	}
	if records == nil {
		records = []collection.Record{}
	}
	return records, nil
}
