// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package idhash provides the xxhash-based key derivation used by
// the undo graph's coalescing groups and the exec router's message
// store, following the same xxhash.Digest + binary.Write idiom as
// internal/fileid's file-identity hash.
package idhash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Combine folds a small number of uint64 fields into a single
// 64-bit key, avoiding the allocation of a string-keyed map entry in
// hot paths (undo coalescing, message lookup).
func Combine(fields ...uint64) uint64 {
	var h xxhash.Digest
	for _, f := range fields {
		binary.Write(&h, binary.BigEndian, f)
	}
	return h.Sum64()
}

// Bytes hashes an arbitrary byte slice, used for message-text keys
// in the exec router's message store.
func Bytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}
