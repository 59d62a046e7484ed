// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package hlcache implements the per-line start-state cache that
// lets the highlighter repaint only the lines that changed after an
// edit, instead of re-running the state machine from the top of the
// buffer every time.
//
// The hole-repair algorithm (fillTo) mirrors the "stepper" idiom of
// internal/decompressioncache: each slot, once known, lets the next
// one be derived cheaply, and a checkpoint (here, first_hole) marks
// how far that derivation has been verified to still hold after an
// edit invalidates some suffix of it.
package hlcache

import (
	"hash/maphash"

	"github.com/dgryski/go-tinylfu"

	"github.com/dte-go/dte/internal/hlstate"
)

var companionSeed = maphash.MakeSeed()

func hashCompanionKey(k companionKey) uint64 {
	return maphash.Comparable(companionSeed, k)
}

// LineSource supplies the raw bytes of a line on demand, with its
// trailing '\n' included (only a final, unterminated line lacks one).
type LineSource interface {
	NumLines() int
	Line(i int) []byte
}

// Step computes the state a line transitions to, discarding its
// colors; hlcache only needs the state half of highlighter.LineHL's
// result.
type Step func(stateIn hlstate.StateRef, line []byte) hlstate.StateRef

type slot struct {
	set   bool
	state hlstate.StateRef
}

// Cache is a LineColorCache: a resizable array of per-line start
// states plus firstHole, the smallest index that may hold an
// unknown state.
//
// Invariants (spec.md §3):
//
//	I1: slots[0] == Some(startState)
//	I2: slots[i] = Some(s) implies s is the state resulting from
//	    running the machine over lines[0..i] from startState.
//	I3: for all i < firstHole, slots[i] is Some.
//	I4: firstHole <= len(slots).
type Cache struct {
	slots      []slot
	firstHole  int
	startState hlstate.StateRef
	step       Step

	// BufferID distinguishes companion-cache keys when several
	// Caches (one per open buffer) share a process-wide tinylfu
	// instance; see WithCompanion.
	BufferID uint64

	companion *tinylfu.T[companionKey, hlstate.StateRef]
}

type companionKey struct {
	buf  uint64
	line int
}

// New returns a Cache seeded with the syntax's start state at line 0.
func New(startState hlstate.StateRef, step Step) *Cache {
	return &Cache{
		slots:      []slot{{set: true, state: startState}},
		firstHole:  1,
		startState: startState,
		step:       step,
	}
}

// WithCompanion attaches a bounded tinylfu cache of recently-queried
// start states, shared across every Cache that passes the same
// instance. This does not change correctness (fillTo never consults
// it to skip real work, only Peek does) — it exists purely so a
// popular buffer's hot lines answer Peek without walking slots.
func (c *Cache) WithCompanion(t *tinylfu.T[companionKey, hlstate.StateRef]) {
	c.companion = t
}

// NewCompanion builds a tinylfu cache sized for n resident entries,
// suitable for sharing across every open buffer's Cache via
// WithCompanion.
func NewCompanion(n int) *tinylfu.T[companionKey, hlstate.StateRef] {
	return tinylfu.New[companionKey, hlstate.StateRef](n, n*10, hashCompanionKey)
}

// Len returns the number of lines the cache currently has a slot for.
func (c *Cache) Len() int { return len(c.slots) }

// FirstHole returns the current hole pointer.
func (c *Cache) FirstHole() int { return c.firstHole }

// Peek returns the cached start state for line i without triggering
// any fill, consulting the companion cache first if attached.
func (c *Cache) Peek(i int) (hlstate.StateRef, bool) {
	if c.companion != nil {
		if s, ok := c.companion.Get(companionKey{c.BufferID, i}); ok {
			return s, true
		}
	}
	if i >= 0 && i < len(c.slots) && c.slots[i].set {
		return c.slots[i].state, true
	}
	return 0, false
}

// StartStateFor fills the cache as needed and returns the start
// state for line n (the state to feed into highlighter.LineHL when
// rendering that line).
func (c *Cache) StartStateFor(n int, src LineSource) hlstate.StateRef {
	c.fillTo(n, src)
	if n < len(c.slots) && c.slots[n].set {
		return c.slots[n].state
	}
	// n is beyond what fillTo could reach (e.g. n >= src.NumLines());
	// the caller asked about a line that doesn't exist yet. Return
	// the last known state rather than panicking.
	return c.slots[len(c.slots)-1].state
}

// fillTo implements spec.md §4.6's hole-repair procedure. It walks
// forward from firstHole-1, computing each next state and folding it
// into the cache, until either line n's state is known or a
// "hole closed" convergence is detected — at which point the
// remaining suffix is already known-valid and the walk stops early,
// even if n has not been reached yet (a later call resumes it).
func (c *Cache) fillTo(n int, src LineSource) {
	for c.firstHole-1 < n {
		i := c.firstHole - 1
		if i < 0 {
			i = 0
		}
		if i >= src.NumLines() {
			return
		}
		sOut := c.step(c.slots[i].state, src.Line(i))
		if c.companion != nil {
			c.companion.Add(companionKey{c.BufferID, i + 1}, sOut)
		}

		switch {
		case i+1 == len(c.slots):
			c.slots = append(c.slots, slot{set: true, state: sOut})
			c.firstHole++
		case !c.slots[i+1].set:
			c.slots[i+1] = slot{set: true, state: sOut}
			c.firstHole++
		case c.slots[i+1].state == sOut:
			j := i + 2
			for j < len(c.slots) && c.slots[j].set {
				j++
			}
			c.firstHole = j
			return
		default:
			c.slots[i+1] = slot{set: true, state: sOut}
			c.firstHole = i + 2
		}
	}
}

// OnInsert implements the insert edit hook of spec.md §4.6.
func (c *Cache) OnInsert(firstLine, insertedNewlines int) {
	n := len(c.slots)
	if firstLine >= n {
		return
	}
	if firstLine+insertedNewlines+1 >= n {
		c.truncate(firstLine + 1)
		return
	}

	newSlots := make([]slot, 0, n+insertedNewlines)
	newSlots = append(newSlots, c.slots[:firstLine+1]...)
	for i := 0; i < insertedNewlines; i++ {
		newSlots = append(newSlots, slot{})
	}
	newSlots = append(newSlots, c.slots[firstLine+1:]...)
	c.slots = newSlots

	for i := firstLine + 1; i < firstLine+insertedNewlines+1; i++ {
		c.slots[i] = slot{}
	}
	if firstLine+1 < c.firstHole {
		c.firstHole = firstLine + 1
	}
}

// OnDelete implements the delete edit hook of spec.md §4.6.
func (c *Cache) OnDelete(firstLine, deletedNewlines int) {
	n := len(c.slots)
	if n == 1 {
		return
	}
	if firstLine >= n {
		return
	}
	if firstLine+deletedNewlines+1 >= n {
		c.truncate(n - deletedNewlines)
		return
	}

	lo := firstLine + 1
	hi := firstLine + 1 + deletedNewlines
	c.slots = append(c.slots[:lo:lo], c.slots[hi:]...)

	if firstLine+1 < c.firstHole {
		c.firstHole = firstLine + 1
	}
}

func (c *Cache) truncate(newLen int) {
	if newLen < 1 {
		newLen = 1
	}
	if newLen > len(c.slots) {
		return
	}
	c.slots = c.slots[:newLen]
	if c.firstHole > newLen {
		c.firstHole = newLen
	}
}
