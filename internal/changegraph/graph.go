// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package changegraph implements the buffer's undo/redo history as a
// rooted tree of reversible Changes, held in an arena of integer ids
// rather than borrowed pointers (see spec §9: "the global EditorState
// singleton becomes an explicit state value" applies equally to this
// arena-of-nodes design).
package changegraph

import "time"

// DefaultCoalesceWindow is the time budget within which consecutive
// single-character inserts at adjacent offsets merge into one undo
// step.
const DefaultCoalesceWindow = 500 * time.Millisecond

// ChangeGraph is an arena of Changes with a current-node pointer.
// Record/Undo/Redo are meant to be called from a single goroutine at
// a time (the spec requires at most one change is ever "being
// applied" per buffer); ChangeGraph does no locking of its own.
type ChangeGraph struct {
	nodes   map[int]*Change
	nextID  int
	root    int
	current int

	// SaveMarker is the id of the change that matches the on-disk
	// bytes; see Buffer.Modified.
	SaveMarker int

	// CoalesceWindow bounds how long after the previous keystroke a
	// new pure-insert change may still merge into it.
	CoalesceWindow time.Duration

	session uint64 // bumped whenever coalescing should not apply
}

// New returns a ChangeGraph with a single root node (an empty anchor
// representing "no changes applied yet").
func New() *ChangeGraph {
	g := &ChangeGraph{
		nodes:          make(map[int]*Change),
		CoalesceWindow: DefaultCoalesceWindow,
	}
	root := &Change{ID: 0, Parent: -1, Current: -1}
	g.nodes[0] = root
	g.nextID = 1
	g.root = 0
	g.current = 0
	g.SaveMarker = 0
	return g
}

// Current returns the id of the change the graph currently sits
// after having applied.
func (g *ChangeGraph) Current() int { return g.current }

// Get returns the Change with the given id, or nil.
func (g *ChangeGraph) Get(id int) *Change { return g.nodes[id] }

// Modified reports whether the current change differs from the
// save marker.
func (g *ChangeGraph) Modified() bool { return g.current != g.SaveMarker }

// MarkSaved sets the save marker to the current change.
func (g *ChangeGraph) MarkSaved() { g.SaveMarker = g.current }

// BreakCoalescing forces the next Record call to start a new group
// even if it would otherwise be contiguous with the current change
// (used e.g. after a cursor jump or an explicit undo/redo).
func (g *ChangeGraph) BreakCoalescing() { g.session++ }

// Record attaches a new change as a child of current and advances
// current to it, unless it coalesces into the existing current node
// (same group, both pure inserts, byte-contiguous, within
// CoalesceWindow), in which case current is merged in place and its
// id is returned unchanged.
func (g *ChangeGraph) Record(offset int64, deleted, inserted []byte, cursorBefore, cursorAfter int64, now time.Time) (id int, coalesced bool) {
	cur := g.nodes[g.current]

	pureInsert := len(deleted) == 0 && len(inserted) > 0
	if pureInsert && cur.Parent != -1 && cur.isPureInsert() &&
		cur.Offset+int64(len(cur.Inserted)) == offset &&
		now.Sub(cur.Time) <= g.CoalesceWindow &&
		cur.GroupID == groupKey(g.session, cur.Offset) {
		cur.Inserted = append(cur.Inserted, inserted...)
		cur.CursorAfter = cursorAfter
		cur.Time = now
		return cur.ID, true
	}

	// Not a coalesce: either start a fresh group (first char of a
	// run) or simply not a pure-insert continuation.
	gid := groupKey(g.session, offset)
	if !pureInsert {
		g.session++ // deletes and replaces never merge with what follows
		gid = groupKey(g.session, offset)
	}

	nid := g.nextID
	g.nextID++
	ch := &Change{
		ID:           nid,
		Parent:       g.current,
		Current:      -1,
		Offset:       offset,
		Deleted:      deleted,
		Inserted:     inserted,
		CursorBefore: cursorBefore,
		CursorAfter:  cursorAfter,
		Time:         now,
		GroupID:      gid,
	}
	g.nodes[nid] = ch
	cur.Children = append(cur.Children, nid)
	cur.Current = len(cur.Children) - 1
	g.current = nid
	return nid, false
}

// Undo returns the change being undone (so the caller can apply its
// inverse: delete Inserted at Offset, then insert Deleted at
// Offset) and moves current to its parent. Fails with ErrAtRoot if
// current is already the root.
func (g *ChangeGraph) Undo() (*Change, error) {
	cur := g.nodes[g.current]
	if cur.Parent == -1 {
		return nil, ErrAtRoot
	}
	g.current = cur.Parent
	g.session++
	return cur, nil
}

// Redo follows the designated current-child pointer (or explicit
// childID, if non-negative and valid) and advances current to it.
// Returns the change for the caller to reapply in its original
// forward direction: delete len(Deleted) bytes at Offset, then insert
// Inserted at Offset.
func (g *ChangeGraph) Redo(childID int) (*Change, error) {
	cur := g.nodes[g.current]
	var target int
	switch {
	case childID >= 0:
		found := false
		for i, c := range cur.Children {
			if c == childID {
				found = true
				cur.Current = i
				break
			}
		}
		if !found {
			return nil, ErrNoSuchChild
		}
		target = childID
	default:
		if len(cur.Children) == 0 {
			return nil, ErrAtLeaf
		}
		if cur.Current < 0 || cur.Current >= len(cur.Children) {
			cur.Current = len(cur.Children) - 1
		}
		target = cur.Children[cur.Current]
	}
	g.current = target
	g.session++
	return g.nodes[target], nil
}

// Children returns the ordered child ids of the current change.
func (g *ChangeGraph) Children() []int {
	cur := g.nodes[g.current]
	return append([]int(nil), cur.Children...)
}

// Restore reinserts a previously recorded Change verbatim, bypassing
// Record's coalescing logic entirely. It is meant for replaying a
// journal log after a restart: call it once per logged entry, in the
// order the entries were originally appended (parents before
// children). Calling it again with an id already present updates that
// node's content in place without re-adding it as a child — the same
// shape a coalesced journal entry takes, since the journal only logs
// the first keystroke of a coalescing run.
func (g *ChangeGraph) Restore(ch Change) {
	if _, exists := g.nodes[ch.ID]; exists {
		g.nodes[ch.ID] = &ch
		g.current = ch.ID
		return
	}
	g.nodes[ch.ID] = &ch
	if parent, ok := g.nodes[ch.Parent]; ok {
		parent.Children = append(parent.Children, ch.ID)
		parent.Current = len(parent.Children) - 1
	}
	if ch.ID >= g.nextID {
		g.nextID = ch.ID + 1
	}
	g.current = ch.ID
}
