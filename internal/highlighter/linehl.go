// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package highlighter runs an hlstate.Machine over single lines,
// producing one color per byte. Caching per-line start states and
// repairing them after edits is done by package hlcache.
package highlighter

import (
	"strings"

	"github.com/dte-go/dte/internal/hlstate"
)

// LineHL runs the state machine over line starting in stateIn,
// returning one ColorRef per byte of line and the state the machine
// ends in. It is a total function: every byte of every line produces
// some result, regardless of content. Pass the line's trailing '\n'
// (if any) as the final byte, so end-of-line conditions can see it.
func LineHL(m *hlstate.Machine, stateIn hlstate.StateRef, line []byte) ([]hlstate.ColorRef, hlstate.StateRef) {
	colors := make([]hlstate.ColorRef, len(line))
	if len(line) == 0 {
		return colors, stateIn
	}

	state := stateIn
	i := 0
	sidx := -1 // "no buffered run" sentinel

	for i < len(line) {
		st := &m.States[state]
		fired := false

		for _, cond := range st.Conditions {
			switch cond.Kind {
			case hlstate.CondCharClass:
				if cond.Bitmap[line[i]] {
					if sidx < 0 {
						sidx = i
					}
					i++
					state = cond.Action.Dest
					fired = true
				}

			case hlstate.CondChar:
				if cond.Bitmap[line[i]] {
					paint(colors, i, i+1, cond.Action.Color)
					i++
					sidx = -1
					state = cond.Action.Dest
					fired = true
				}

			case hlstate.CondBufferIs:
				if sidx >= 0 && bufIs(line[sidx:i], cond.Str, cond.ICase) {
					paint(colors, sidx, i, cond.Action.Color)
					sidx = -1
					state = cond.Action.Dest
					fired = true
				}

			case hlstate.CondInList, hlstate.CondInHash:
				// InHash differs from InList only in how a large
				// syntax definition would index cond.List (an
				// open-chained hash, per spec.md §4.5); membership
				// semantics are identical, so both variants share
				// this branch.
				if sidx >= 0 && inList(line[sidx:i], cond.List, cond.ICase) {
					paint(colors, sidx, i, cond.Action.Color)
					sidx = -1
					state = cond.Action.Dest
					fired = true
				}

			case hlstate.CondStr:
				if hasPrefixAt(line, i, cond.Str, false) {
					paint(colors, i, i+len(cond.Str), cond.Action.Color)
					i += len(cond.Str)
					sidx = -1
					state = cond.Action.Dest
					fired = true
				}

			case hlstate.CondStrICase:
				if hasPrefixAt(line, i, cond.Str, true) {
					paint(colors, i, i+len(cond.Str), cond.Action.Color)
					i += len(cond.Str)
					sidx = -1
					state = cond.Action.Dest
					fired = true
				}

			case hlstate.CondRecolorBack:
				start := i - cond.N
				if start < 0 {
					start = 0
				}
				paint(colors, start, i, cond.Action.Color)
				state = cond.Action.Dest
				fired = true

			case hlstate.CondRecolorBuffer:
				if sidx >= 0 {
					paint(colors, sidx, i, cond.Action.Color)
					sidx = -1
					state = cond.Action.Dest
					fired = true
				}
			}

			if fired {
				break
			}
		}

		if fired {
			continue
		}

		def := st.Default
		if def.Noeat {
			state = def.Dest
			sidx = -1
			continue
		}
		paint(colors, i, i+1, def.Color)
		i++
		sidx = -1
		state = def.Dest
	}

	return colors, state
}

func paint(colors []hlstate.ColorRef, lo, hi int, c hlstate.ColorRef) {
	if lo < 0 {
		lo = 0
	}
	if hi > len(colors) {
		hi = len(colors)
	}
	for i := lo; i < hi; i++ {
		colors[i] = c
	}
}

func bufIs(buf []byte, s string, icase bool) bool {
	if len(buf) != len(s) {
		return false
	}
	if icase {
		return strings.EqualFold(string(buf), s)
	}
	return string(buf) == s
}

func inList(buf []byte, list []string, icase bool) bool {
	for _, s := range list {
		if bufIs(buf, s, icase) {
			return true
		}
	}
	return false
}

func hasPrefixAt(line []byte, i int, s string, icase bool) bool {
	if i+len(s) > len(line) {
		return false
	}
	seg := line[i : i+len(s)]
	if icase {
		return strings.EqualFold(string(seg), s)
	}
	return string(seg) == s
}
