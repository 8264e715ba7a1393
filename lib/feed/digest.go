// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import "github.com/zeebo/blake3"

// snapshotDomainKey keys the payload hash so feed digests never
// collide with BLAKE3 hashes of the same bytes used elsewhere. It is
// "console.feed.snapshot" zero-padded to 32 bytes.
var snapshotDomainKey = [32]byte{
	'c', 'o', 'n', 's', 'o', 'l', 'e', '.', 'f', 'e', 'e', 'd', '.',
	's', 'n', 'a', 'p', 's', 'h', 'o', 't',
}

// Sum returns the digest of an uncompressed snapshot payload.
func Sum(payload []byte) Digest {
	hasher, err := blake3.NewKeyed(snapshotDomainKey[:])
	if err != nil {
		panic("feed: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}
