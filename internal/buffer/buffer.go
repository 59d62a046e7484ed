// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package buffer composes a BlockStore and a ChangeGraph into the
// single mutation primitive the rest of the editor calls:
// ReplaceBytes. It also fans edit notifications out to whatever
// incremental highlighter is attached, synchronously and inline —
// there is no visible intermediate state between a mutation and the
// highlighter learning about it.
package buffer

import (
	"fmt"
	"time"

	"github.com/dte-go/dte/internal/blockstore"
	"github.com/dte-go/dte/internal/changegraph"
	"github.com/dte-go/dte/internal/journal"
)

// EditHook receives notification of the (first_line, inserted_lines,
// deleted_newlines) triple every mutation produces, counted in
// '\n' bytes of the removed and inserted spans.
type EditHook interface {
	OnInsert(firstLine, insertedNewlines int)
	OnDelete(firstLine, deletedNewlines int)
}

// Buffer owns a BlockStore and a ChangeGraph, and optionally notifies
// an EditHook (normally a highlighter) of every mutation.
type Buffer struct {
	Store *blockstore.BlockStore
	Graph *changegraph.ChangeGraph

	Hook EditHook

	// Journal, if set, receives every non-coalesced Record as a
	// durable Entry before ReplaceBytes returns, giving the buffer
	// crash recovery: a restart loses at most the coalescing run that
	// was in flight, not the whole undo history (see internal/journal
	// and editor.Open's replay).
	Journal *journal.Journal

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{
		Store: blockstore.New(),
		Graph: changegraph.New(),
		Now:   time.Now,
	}
}

// NL returns the buffer's newline count (mirrors BlockStore.TotalNL).
func (b *Buffer) NL() int { return b.Store.TotalNL() }

// Modified reports whether the buffer differs from its last save.
func (b *Buffer) Modified() bool { return b.Graph.Modified() }

// MarkSaved records the current change as matching on-disk bytes.
func (b *Buffer) MarkSaved() { b.Graph.MarkSaved() }

// ReplaceBytes is the single mutation primitive: delete nDelete
// bytes at offset, then insert bytesInsert at that same offset. It
// is transactional at this scope — if the store rejects the edit the
// buffer is unchanged and no edit event is emitted. A Journal append
// error is returned after the edit has been applied, recorded in the
// graph and reported to Hook.
func (b *Buffer) ReplaceBytes(offset int64, nDelete int64, bytesInsert []byte) error {
	deleted, err := b.Store.BytesIn(offset, nDelete)
	if err != nil {
		return err
	}

	firstLine := b.lineAt(offset)
	deletedNL := countNL(deleted)
	insertedNL := countNL(bytesInsert)

	if nDelete > 0 {
		if err := b.Store.Delete(offset, nDelete); err != nil {
			return err
		}
	}
	if len(bytesInsert) > 0 {
		if err := b.Store.Insert(offset, bytesInsert); err != nil {
			// Roll back the delete half so the buffer is unchanged
			// on failure, matching the transactional contract.
			if nDelete > 0 {
				b.Store.Insert(offset, deleted)
			}
			return err
		}
	}

	cursorBefore := offset
	cursorAfter := offset + int64(len(bytesInsert))
	id, coalesced := b.Graph.Record(offset, deleted, bytesInsert, cursorBefore, cursorAfter, b.Now())

	if b.Hook != nil {
		if deletedNL > 0 {
			b.Hook.OnDelete(firstLine, deletedNL)
		}
		if insertedNL > 0 {
			b.Hook.OnInsert(firstLine, insertedNL)
		}
	}

	if b.Journal != nil && !coalesced {
		ch := b.Graph.Get(id)
		entry := journal.Entry{
			ID:           ch.ID,
			Parent:       ch.Parent,
			Offset:       ch.Offset,
			Deleted:      ch.Deleted,
			Inserted:     ch.Inserted,
			CursorBefore: ch.CursorBefore,
			CursorAfter:  ch.CursorAfter,
			TimeUnixNano: ch.Time.UnixNano(),
			GroupID:      ch.GroupID,
		}
		if err := b.Journal.Append(entry); err != nil {
			return fmt.Errorf("buffer: journal append: %w", err)
		}
	}
	return nil
}

// Undo reverts the current change and moves the graph's current
// pointer to its parent, returning the cursor offset recorded before
// that change was made. Fails with
// changegraph.ErrAtRoot if there is nothing to undo.
func (b *Buffer) Undo() (cursorBefore int64, err error) {
	ch, err := b.Graph.Undo()
	if err != nil {
		return 0, err
	}
	if err := b.applyInverse(ch); err != nil {
		return 0, err
	}
	return ch.CursorBefore, nil
}

// Redo reapplies the designated (or explicit) child change. Pass
// childID -1 to follow the current-child pointer.
func (b *Buffer) Redo(childID int) (cursorAfter int64, err error) {
	ch, err := b.Graph.Redo(childID)
	if err != nil {
		return 0, err
	}
	if err := b.applyForward(ch); err != nil {
		return 0, err
	}
	return ch.CursorAfter, nil
}

func (b *Buffer) applyInverse(ch *changegraph.Change) error {
	firstLine := b.lineAt(ch.Offset)
	if len(ch.Inserted) > 0 {
		if err := b.Store.Delete(ch.Offset, int64(len(ch.Inserted))); err != nil {
			return err
		}
	}
	if len(ch.Deleted) > 0 {
		if err := b.Store.Insert(ch.Offset, ch.Deleted); err != nil {
			return err
		}
	}
	if b.Hook != nil {
		if n := countNL(ch.Inserted); n > 0 {
			b.Hook.OnDelete(firstLine, n)
		}
		if n := countNL(ch.Deleted); n > 0 {
			b.Hook.OnInsert(firstLine, n)
		}
	}
	return nil
}

func (b *Buffer) applyForward(ch *changegraph.Change) error {
	firstLine := b.lineAt(ch.Offset)
	if len(ch.Deleted) > 0 {
		if err := b.Store.Delete(ch.Offset, int64(len(ch.Deleted))); err != nil {
			return err
		}
	}
	if len(ch.Inserted) > 0 {
		if err := b.Store.Insert(ch.Offset, ch.Inserted); err != nil {
			return err
		}
	}
	if b.Hook != nil {
		if n := countNL(ch.Deleted); n > 0 {
			b.Hook.OnDelete(firstLine, n)
		}
		if n := countNL(ch.Inserted); n > 0 {
			b.Hook.OnInsert(firstLine, n)
		}
	}
	return nil
}

// lineAt returns the 0-based line index containing offset, i.e. the
// count of '\n' bytes strictly before it.
func (b *Buffer) lineAt(offset int64) int {
	if offset <= 0 {
		return 0
	}
	prefix, err := b.Store.BytesIn(0, offset)
	if err != nil {
		return 0
	}
	return countNL(prefix)
}

func countNL(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
