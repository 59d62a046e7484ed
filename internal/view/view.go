// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package view implements the cursor and selection state that sits
// on top of a buffer.Buffer: one View per tab, borrowing the buffer
// it points into.
package view

import (
	"github.com/dte-go/dte/internal/blockstore"
	"github.com/dte-go/dte/internal/buffer"
)

// SelectionKind distinguishes an empty selection from a character
// range or a whole-line range.
type SelectionKind int

const (
	SelNone SelectionKind = iota
	SelChars
	SelLines
)

// Selection is a half-open byte range [So, Eo). For SelLines, So
// snaps to the start of its line and Eo snaps to the start of the
// line after its line.
type Selection struct {
	Kind SelectionKind
	So   int64
	Eo   int64
}

// View borrows a Buffer and tracks a cursor, a selection, the
// preferred column for vertical movement, the visual top-left
// corner, and two one-shot flags mirrored from the original C core.
type View struct {
	Buf *buffer.Buffer

	cursor blockstore.BlockIter

	sel Selection

	PreferredColumn int
	VX, VY          int

	// NextMovementCancelsSelection, when set, causes the next plain
	// (non-extending) movement to clear the selection instead of
	// moving relative to it.
	NextMovementCancelsSelection bool

	// ForceCenterOnNextRepaint asks the next repaint to recenter the
	// viewport on the cursor regardless of scroll heuristics.
	ForceCenterOnNextRepaint bool
}

// New returns a View with its cursor at offset 0 of buf.
func New(buf *buffer.Buffer) *View {
	return &View{Buf: buf, cursor: buf.Store.IterAt(0)}
}

// Offset returns the cursor's absolute byte offset.
func (v *View) Offset() int64 { return v.cursor.Offset() }

// Selection returns the current selection descriptor.
func (v *View) Selection() Selection { return v.sel }

// ClearSelection drops any active selection.
func (v *View) ClearSelection() { v.sel = Selection{} }

// Select starts or extends a selection of the given kind anchored at
// the cursor's current offset before this call moves it, or extends
// an existing selection's end to the cursor. extend=false with no
// current selection begins a new one anchored here.
func (v *View) Select(kind SelectionKind, extend bool) {
	off := v.cursor.Offset()
	if !extend || v.sel.Kind == SelNone {
		v.sel = Selection{Kind: kind, So: off, Eo: off}
		return
	}
	v.sel.Kind = kind
	if off < v.sel.So {
		v.sel.So = off
	} else {
		v.sel.Eo = off
	}
}

// beforeMove applies the NextMovementCancelsSelection policy: if
// set, a non-extending movement clears the selection first.
func (v *View) beforeMove(extend bool) {
	if !extend && v.NextMovementCancelsSelection {
		v.ClearSelection()
	}
}

// afterMove, called by every movement that should extend the active
// selection, widens it to the cursor's new offset.
func (v *View) afterMove(extend bool) {
	if extend {
		if v.sel.Kind == SelNone {
			v.sel.Kind = SelChars
		}
		off := v.cursor.Offset()
		switch {
		case off < v.sel.So && v.sel.Eo == v.sel.So:
			v.sel.So = off
		case off <= v.sel.So:
			v.sel.So = off
		default:
			v.sel.Eo = off
		}
	}
}

// MoveNextByte moves the cursor forward one byte.
func (v *View) MoveNextByte(extend bool) {
	v.beforeMove(extend)
	v.cursor.NextByte()
	v.afterMove(extend)
}

// MovePrevByte moves the cursor back one byte.
func (v *View) MovePrevByte(extend bool) {
	v.beforeMove(extend)
	v.cursor.PrevByte()
	v.afterMove(extend)
}

// MoveNextCodepoint moves the cursor forward one UTF-8 codepoint.
func (v *View) MoveNextCodepoint(extend bool) {
	v.beforeMove(extend)
	v.cursor.NextCodepoint()
	v.afterMove(extend)
}

// MovePrevCodepoint moves the cursor back one UTF-8 codepoint.
func (v *View) MovePrevCodepoint(extend bool) {
	v.beforeMove(extend)
	v.cursor.PrevCodepoint()
	v.afterMove(extend)
}

// MoveBOL moves the cursor to the start of its current line.
func (v *View) MoveBOL(extend bool) {
	v.beforeMove(extend)
	v.cursor.BOL()
	v.afterMove(extend)
}

// MoveEOL moves the cursor past the end of its current line.
func (v *View) MoveEOL(extend bool) {
	v.beforeMove(extend)
	v.cursor.EOL()
	v.afterMove(extend)
}

// MoveNextLine moves the cursor to the start of the following line.
func (v *View) MoveNextLine(extend bool) {
	v.beforeMove(extend)
	v.cursor.NextLine()
	v.afterMove(extend)
}

// MovePrevLine moves the cursor to the start of the preceding line.
func (v *View) MovePrevLine(extend bool) {
	v.beforeMove(extend)
	v.cursor.PrevLine()
	v.afterMove(extend)
}

// MoveTo repositions the cursor at an absolute offset, re-borrowing
// the buffer's store (offsets may have shifted since the last move).
func (v *View) MoveTo(offset int64, extend bool) {
	v.beforeMove(extend)
	v.cursor = v.Buf.Store.IterAt(offset)
	v.afterMove(extend)
}

// NormalizedSelection returns the selection with Kind=SelLines
// snapped to line boundaries, resolving So/Eo against the buffer.
func (v *View) NormalizedSelection() Selection {
	s := v.sel
	if s.Kind != SelLines {
		return s
	}
	soIt := v.Buf.Store.IterAt(s.So)
	soIt.BOL()
	s.So = soIt.Offset()

	eoIt := v.Buf.Store.IterAt(s.Eo)
	eoIt.BOL()
	if eoIt.Offset() < s.Eo || s.Eo == s.So {
		eoIt.EOL()
	}
	s.Eo = eoIt.Offset()
	return s
}
