// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package blockstore

import (
	"fmt"
	"io"
	"math"

	"github.com/therootcompany/xz"
)

// Load reads all of r into a fresh BlockStore, chunked the same way
// Insert would chunk a large paste.
func Load(r io.Reader) (*BlockStore, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("blockstore: load: %w", err)
	}
	s := &BlockStore{blocks: chunk(data)}
	if len(s.blocks) == 0 {
		s.blocks = []*block{newBlock(nil)}
	}
	for _, b := range s.blocks {
		s.totalBytes += int64(b.size())
		s.totalNL += b.nl
	}
	return s, nil
}

// LoadCompressed reads an xz-compressed file straight into a
// BlockStore, for opening a .xz-suffixed buffer without a separate
// decompress-to-tempfile step (mirrors probeArchive's xz.NewReader
// idiom, applied here to a flat buffer load instead of an archive).
func LoadCompressed(r io.ReaderAt) (*BlockStore, error) {
	zr, err := xz.NewReader(io.NewSectionReader(r, 0, math.MaxInt64), xz.DefaultDictMax)
	if err != nil {
		return nil, fmt.Errorf("blockstore: load compressed: %w", err)
	}
	return Load(zr)
}
