// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package journal gives a changegraph.ChangeGraph crash recovery: every
// Record call is appended to a small on-disk log (backed by pebble,
// synced per entry) right after the in-memory graph records it, so a crash
// mid-session loses at most the edit that was in flight, not the
// session's whole undo history.
package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/cockroachdb/pebble/v2"
)

// Entry is the durable form of one changegraph.Change, just the
// fields needed to replay Record calls in order on reopen.
type Entry struct {
	ID           int
	Parent       int
	Offset       int64
	Deleted      []byte
	Inserted     []byte
	CursorBefore int64
	CursorAfter  int64
	TimeUnixNano int64
	GroupID      uint64
}

// Journal appends Entries keyed by a monotonically increasing
// sequence number, so pebble's natural key order is also log order.
type Journal struct {
	db  *pebble.DB
	seq uint64
}

// Open creates or reopens the journal stored at dir.
func Open(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dir, err)
	}
	j := &Journal{db: db}
	if err := j.recoverSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) recoverSeq() error {
	iter, err := j.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()
	if iter.Last() {
		j.seq = binary.BigEndian.Uint64(iter.Key()) + 1
	}
	return iter.Error()
}

// Append durably records e and returns once it is fsynced.
// buffer.Buffer calls it after the change has been applied to the
// store and recorded in the in-memory graph.
func (j *Journal) Append(e Entry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("journal: encode entry: %w", err)
	}

	var key [8]byte
	binary.BigEndian.PutUint64(key[:], j.seq)
	if err := j.db.Set(key[:], buf.Bytes(), pebble.Sync); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	j.seq++
	return nil
}

// Replay calls fn once per logged Entry in append order, for
// reconstructing a ChangeGraph after a restart.
func (j *Journal) Replay(fn func(Entry) error) error {
	iter, err := j.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := gob.NewDecoder(bytes.NewReader(iter.Value())).Decode(&e); err != nil {
			return fmt.Errorf("journal: decode entry: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Truncate drops every logged entry, used once a session saves
// cleanly and no longer needs crash recovery back to session start.
func (j *Journal) Truncate() error {
	iter, err := j.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()
	if !iter.First() {
		return iter.Error()
	}
	lo := append([]byte(nil), iter.Key()...)
	if !iter.Last() {
		return iter.Error()
	}
	hi := append(append([]byte(nil), iter.Key()...), 0)
	return j.db.DeleteRange(lo, hi, pebble.Sync)
}

// Close releases the underlying pebble handle.
func (j *Journal) Close() error { return j.db.Close() }
