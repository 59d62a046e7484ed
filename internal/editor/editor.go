// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package editor wires the buffer, highlighter, and exec router into
// the single object a front end (a terminal UI, a test harness) talks
// to. Rendering the terminal itself is out of scope; this is the
// model half of the split.
package editor

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dte-go/dte/internal/blockstore"
	"github.com/dte-go/dte/internal/buffer"
	"github.com/dte-go/dte/internal/changegraph"
	"github.com/dte-go/dte/internal/execrouter"
	"github.com/dte-go/dte/internal/highlighter"
	"github.com/dte-go/dte/internal/hlcache"
	"github.com/dte-go/dte/internal/hlstate"
	"github.com/dte-go/dte/internal/journal"
	"github.com/dte-go/dte/internal/view"
)

// Editor owns one open buffer and everything that renders or acts on
// it: its view/cursor, its syntax cache, and its exec router.
type Editor struct {
	Buf    *buffer.Buffer
	View   *view.View
	Router *execrouter.Router

	machine *hlstate.Machine
	cache   *hlcache.Cache
	path    string
}

// Open reads path into a fresh Buffer and wires up m as its syntax.
// m may be nil, in which case lines render with ColorRef zero. A
// ".xz" suffix dispatches to blockstore.LoadCompressed instead of a
// plain read. Open also opens (or replays) a crash-recovery journal
// sitting alongside path; see Buffer.Journal.
func Open(path string, m *hlstate.Machine) (*Editor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("editor: open %s: %w", path, err)
	}
	defer f.Close()

	var store *blockstore.BlockStore
	if strings.HasSuffix(path, ".xz") {
		store, err = blockstore.LoadCompressed(f)
	} else {
		store, err = blockstore.Load(f)
	}
	if err != nil {
		return nil, fmt.Errorf("editor: load %s: %w", path, err)
	}

	jr, err := journal.Open(path + ".dtejournal")
	if err != nil {
		return nil, fmt.Errorf("editor: open journal for %s: %w", path, err)
	}

	graph := changegraph.New()
	if err := jr.Replay(func(e journal.Entry) error {
		if len(e.Deleted) > 0 {
			if err := store.Delete(e.Offset, int64(len(e.Deleted))); err != nil {
				return err
			}
		}
		if len(e.Inserted) > 0 {
			if err := store.Insert(e.Offset, e.Inserted); err != nil {
				return err
			}
		}
		graph.Restore(changegraph.Change{
			ID:           e.ID,
			Parent:       e.Parent,
			Offset:       e.Offset,
			Deleted:      e.Deleted,
			Inserted:     e.Inserted,
			CursorBefore: e.CursorBefore,
			CursorAfter:  e.CursorAfter,
			Time:         time.Unix(0, e.TimeUnixNano),
			GroupID:      e.GroupID,
		})
		return nil
	}); err != nil {
		jr.Close()
		return nil, fmt.Errorf("editor: replay journal for %s: %w", path, err)
	}

	e := &Editor{
		Buf:     &buffer.Buffer{Store: store, Graph: graph, Journal: jr, Now: time.Now},
		Router:  execrouter.New(),
		machine: m,
		path:    path,
	}
	e.View = view.New(e.Buf)
	if m != nil {
		e.cache = hlcache.New(m.Start, e.step)
	}
	e.Buf.Hook = e
	return e, nil
}

// Save writes the buffer's current contents back to disk, marks it
// clean, and truncates the crash-recovery journal: the file on disk
// is now the new baseline, so the undo history leading to it no
// longer needs to survive a restart.
func (e *Editor) Save() error {
	data, err := e.Buf.Store.BytesIn(0, e.Buf.Store.TotalBytes())
	if err != nil {
		return err
	}
	if err := os.WriteFile(e.path, data, 0644); err != nil {
		return fmt.Errorf("editor: save %s: %w", e.path, err)
	}
	e.Buf.MarkSaved()
	if e.Buf.Journal != nil {
		if err := e.Buf.Journal.Truncate(); err != nil {
			return fmt.Errorf("editor: truncate journal for %s: %w", e.path, err)
		}
	}
	return nil
}

// Close releases the editor's crash-recovery journal handle. Callers
// that never call Save before exiting should still call Close so the
// journal's pebble handle (and its lock file) is released cleanly.
func (e *Editor) Close() error {
	if e.Buf.Journal != nil {
		return e.Buf.Journal.Close()
	}
	return nil
}

// NumLines implements hlcache.LineSource. A trailing '\n' ends the
// last line rather than starting an empty one, so "a\nb\n" has two
// lines; an empty buffer has one (empty) line.
func (e *Editor) NumLines() int {
	n := e.Buf.NL()
	size := e.Buf.Store.TotalBytes()
	if size > 0 {
		if last, err := e.Buf.Store.BytesIn(size-1, 1); err == nil && last[0] == '\n' {
			return n
		}
	}
	return n + 1
}

// Line implements hlcache.LineSource, returning line i's bytes
// (including its trailing '\n' unless it is the final, unterminated
// line).
func (e *Editor) Line(i int) []byte {
	it := e.Buf.Store.IterAt(0)
	for n := 0; n < i; n++ {
		it.NextLine()
	}
	start := it.Offset()
	it.EOL()
	end := it.Offset()
	b, err := e.Buf.Store.BytesIn(start, end-start)
	if err != nil {
		return nil
	}
	return b
}

func (e *Editor) step(stateIn hlstate.StateRef, line []byte) hlstate.StateRef {
	_, sOut := highlighter.LineHL(e.machine, stateIn, line)
	return sOut
}

// RenderLine returns line i's per-byte colors, computing its start
// state from the syntax cache (filling any hole up to i first).
func (e *Editor) RenderLine(i int) []hlstate.ColorRef {
	if e.machine == nil || e.cache == nil {
		return make([]hlstate.ColorRef, len(e.Line(i)))
	}
	stateIn := e.cache.StartStateFor(i, e)
	colors, _ := highlighter.LineHL(e.machine, stateIn, e.Line(i))
	return colors
}

// OnInsert implements buffer.EditHook, forwarding to the syntax cache.
func (e *Editor) OnInsert(firstLine, insertedNewlines int) {
	if e.cache != nil {
		e.cache.OnInsert(firstLine, insertedNewlines)
	}
}

// OnDelete implements buffer.EditHook, forwarding to the syntax cache.
func (e *Editor) OnDelete(firstLine, deletedNewlines int) {
	if e.cache != nil {
		e.cache.OnDelete(firstLine, deletedNewlines)
	}
}
