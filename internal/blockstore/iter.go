// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package blockstore

import "unicode/utf8"

// BlockIter is a cursor into a BlockStore, addressed by block index
// and in-block offset rather than by pointer, so it survives splits
// and merges triggered by other operations on the same store (see
// internal/sectionreader for the read-side analogue of this
// re-borrow-on-each-call idiom).
//
// Invariant: offset <= blocks[index].size(); when offset equals the
// block's size and index is not the last block, the iterator is
// considered to be at the first byte of the next block. Both
// representations are accepted on input; IterAt and every mutating
// method normalize to the later form.
type BlockIter struct {
	store *BlockStore
	index int
	off   int
}

// IterAt returns a normalized BlockIter at the given absolute byte
// offset.
func (s *BlockStore) IterAt(offset int64) BlockIter {
	idx, within := s.locate(offset)
	it := BlockIter{store: s, index: idx, off: within}
	it.normalize()
	return it
}

func (it *BlockIter) normalize() {
	for it.index < len(it.store.blocks)-1 && it.off == it.store.blocks[it.index].size() {
		it.index++
		it.off = 0
	}
}

// Offset returns the iterator's absolute byte offset.
func (it BlockIter) Offset() int64 {
	var acc int64
	for i := 0; i < it.index; i++ {
		acc += int64(it.store.blocks[i].size())
	}
	return acc + int64(it.off)
}

func (it *BlockIter) curBlock() *block { return it.store.blocks[it.index] }

func (it *BlockIter) atEnd() bool {
	return it.index == len(it.store.blocks)-1 && it.off == it.curBlock().size()
}

func (it *BlockIter) atStart() bool { return it.index == 0 && it.off == 0 }

// NextByte advances past one byte, returning it. ok is false at end
// of store, in which case the iterator does not move.
func (it *BlockIter) NextByte() (b byte, ok bool) {
	if it.atEnd() {
		return 0, false
	}
	b = it.curBlock().data[it.off]
	it.off++
	it.normalize()
	return b, true
}

// PrevByte steps back one byte and returns it. ok is false at start
// of store.
func (it *BlockIter) PrevByte() (b byte, ok bool) {
	if it.atStart() {
		return 0, false
	}
	if it.off == 0 {
		it.index--
		it.off = it.curBlock().size()
	}
	it.off--
	return it.curBlock().data[it.off], true
}

// NextCodepoint decodes and advances past one UTF-8 codepoint.
// Invalid sequences are treated as a single byte so movement is
// always defined.
func (it *BlockIter) NextCodepoint() (r rune, size int, ok bool) {
	if it.atEnd() {
		return 0, 0, false
	}
	// Codepoints may straddle a block boundary; materialize up to
	// utf8.UTFMax bytes ahead to decode safely.
	peek := it.peekBytes(utf8.UTFMax)
	if len(peek) == 0 {
		return 0, 0, false
	}
	r, size = utf8.DecodeRune(peek)
	if r == utf8.RuneError && size <= 1 {
		size = 1
	}
	for i := 0; i < size; i++ {
		it.NextByte()
	}
	return r, size, true
}

// PrevCodepoint decodes and steps back over one UTF-8 codepoint.
func (it *BlockIter) PrevCodepoint() (r rune, size int, ok bool) {
	if it.atStart() {
		return 0, 0, false
	}
	// Scan back up to utf8.UTFMax bytes looking for a lead byte.
	saved := *it
	var buf []byte
	for i := 0; i < utf8.UTFMax; i++ {
		b, ok := it.PrevByte()
		if !ok {
			break
		}
		buf = append([]byte{b}, buf...)
		if utf8.RuneStart(b) {
			break
		}
	}
	if len(buf) == 0 {
		*it = saved
		return 0, 0, false
	}
	r, size = utf8.DecodeRune(buf)
	if r == utf8.RuneError && size <= 1 {
		// Not a valid multi-byte lead; treat only the last raw byte
		// as the codepoint.
		*it = saved
		it.PrevByte()
		return rune(buf[len(buf)-1]), 1, true
	}
	return r, size, true
}

// peekBytes returns up to n bytes forward from the iterator without
// moving it, possibly crossing block boundaries.
func (it *BlockIter) peekBytes(n int) []byte {
	cp := *it
	out := make([]byte, 0, n)
	for len(out) < n {
		b, ok := cp.NextByte()
		if !ok {
			break
		}
		out = append(out, b)
	}
	return out
}

// SkipBytes advances (n >= 0) or retreats (n < 0) by |n| bytes,
// clamping at the ends of the store.
func (it *BlockIter) SkipBytes(n int) {
	for ; n > 0; n-- {
		if _, ok := it.NextByte(); !ok {
			break
		}
	}
	for ; n < 0; n++ {
		if _, ok := it.PrevByte(); !ok {
			break
		}
	}
}

// BOL moves the iterator to the first byte of its current line.
func (it *BlockIter) BOL() {
	for !it.atStart() {
		saved := *it
		b, ok := it.PrevByte()
		if !ok {
			return
		}
		if b == '\n' {
			*it = saved
			return
		}
	}
}

// EOL moves the iterator just past the next '\n', or to end of store
// if there is none.
func (it *BlockIter) EOL() {
	for {
		b, ok := it.NextByte()
		if !ok {
			return
		}
		if b == '\n' {
			return
		}
	}
}

// NextLine moves to the start of the following line.
func (it *BlockIter) NextLine() {
	it.EOL()
}

// PrevLine moves to the start of the preceding line.
func (it *BlockIter) PrevLine() {
	it.BOL()
	if it.atStart() {
		return
	}
	it.PrevByte() // step over the '\n' that ended the previous line
	it.BOL()
}
