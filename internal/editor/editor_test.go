// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package editor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dte-go/dte/internal/hlstate"
)

func quoteMachine() (*hlstate.Machine, hlstate.ColorRef, hlstate.ColorRef) {
	const (
		colDefault hlstate.ColorRef = 1
		colString  hlstate.ColorRef = 2
	)
	m := hlstate.NewMachine("quote")
	def := m.AddState("default", hlstate.Action{Color: colDefault, Dest: 0})
	str := m.AddState("string", hlstate.Action{Color: colString, Dest: 0})
	m.AddCondition(def, hlstate.Condition{
		Kind:   hlstate.CondChar,
		Bitmap: hlstate.Bitmap('"'),
		Action: hlstate.Action{Color: colString, Dest: str},
	})
	m.States[def].Default = hlstate.Action{Color: colDefault, Dest: def}
	m.AddCondition(str, hlstate.Condition{
		Kind:   hlstate.CondChar,
		Bitmap: hlstate.Bitmap('"'),
		Action: hlstate.Action{Color: colString, Dest: def},
	})
	m.States[str].Default = hlstate.Action{Color: colString, Dest: str}
	m.Start = def
	return m, colDefault, colString
}

func TestOpenEditSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buf.txt")
	if err := os.WriteFile(path, []byte("hello\nworld\n"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	e, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()
	if e.NumLines() != 2 {
		t.Fatalf("NumLines() = %d, want 2", e.NumLines())
	}
	if string(e.Line(0)) != "hello\n" || string(e.Line(1)) != "world\n" {
		t.Fatalf("lines = %q, %q", e.Line(0), e.Line(1))
	}

	if err := e.Buf.ReplaceBytes(0, 0, []byte("say ")); err != nil {
		t.Fatalf("ReplaceBytes: %v", err)
	}
	if !e.Buf.Modified() {
		t.Fatalf("expected buffer to be marked modified")
	}

	if err := e.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if e.Buf.Modified() {
		t.Fatalf("expected Save to clear the modified flag")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "say hello\nworld\n" {
		t.Fatalf("saved file = %q, want %q", got, "say hello\nworld\n")
	}
}

func TestRenderLineUsesSyntaxCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buf.txt")
	if err := os.WriteFile(path, []byte(`x"y"z`+"\n"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	m, colDefault, colString := quoteMachine()
	e, err := Open(path, m)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	colors := e.RenderLine(0)
	want := []hlstate.ColorRef{colDefault, colString, colString, colString, colDefault, colDefault}
	if len(colors) != len(want) {
		t.Fatalf("colors = %v, want len %d", colors, len(want))
	}
	for i := range want {
		if colors[i] != want[i] {
			t.Fatalf("colors[%d] = %v, want %v", i, colors[i], want[i])
		}
	}
}

func TestEditInvalidatesSyntaxCacheHole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buf.txt")
	if err := os.WriteFile(path, []byte("aaa\nbbb\nccc\n"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	m, _, _ := quoteMachine()
	e, err := Open(path, m)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()
	_ = e.RenderLine(2) // fully populate the cache

	if err := e.Buf.ReplaceBytes(0, 0, []byte("\n")); err != nil {
		t.Fatalf("ReplaceBytes: %v", err)
	}
	if e.cache.FirstHole() > 1 {
		t.Fatalf("FirstHole() = %d after an edit at line 0, want <= 1", e.cache.FirstHole())
	}
}

func TestJournalReplayRecoversUnsavedEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buf.txt")
	if err := os.WriteFile(path, []byte("aaa\nbbb\n"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	e1, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e1.Buf.ReplaceBytes(0, 0, []byte("XXX")); err != nil {
		t.Fatalf("ReplaceBytes: %v", err)
	}
	// Simulate a crash: the journal handle is released without Save
	// ever running, so the edit never reached disk but did reach the
	// journal.
	if err := e1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()
	if string(e2.Line(0)) != "XXXaaa\n" {
		t.Fatalf("Line(0) = %q after replay, want %q", e2.Line(0), "XXXaaa\n")
	}
	if e2.Buf.Graph.Current() == 0 {
		t.Fatalf("expected replayed ChangeGraph to have advanced past the root")
	}
}

func TestOpenDispatchesXzSuffixToLoadCompressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buf.txt.xz")
	// Produced by `printf 'compressed one\ncompressed two\n' | xz -6`.
	xzBytes := []byte{
		0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0x00, 0x04, 0xe6, 0xd6, 0xb4, 0x46,
		0x04, 0xc0, 0x21, 0x1e, 0x21, 0x01, 0x16, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x28, 0x06, 0xd6, 0xca, 0xe0, 0x00, 0x1d, 0x00,
		0x19, 0x5d, 0x00, 0x31, 0x9b, 0xc9, 0xf3, 0xf6, 0xbc, 0x8e, 0xc5, 0xce,
		0x1d, 0x57, 0xba, 0xa6, 0xc5, 0x88, 0x00, 0x73, 0xf7, 0xb5, 0x49, 0xc3,
		0x2e, 0x5a, 0xfd, 0x60, 0x00, 0x00, 0x00, 0x00, 0x64, 0x00, 0x46, 0xc9,
		0xde, 0x75, 0x39, 0x42, 0x00, 0x01, 0x3d, 0x1e, 0xf6, 0xc0, 0x61, 0xb0,
		0x1f, 0xb6, 0xf3, 0x7d, 0x01, 0x00, 0x00, 0x00, 0x00, 0x04, 0x59, 0x5a,
	}
	if err := os.WriteFile(path, xzBytes, 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	e, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()
	if e.NumLines() != 2 {
		t.Fatalf("NumLines() = %d, want 2", e.NumLines())
	}
	if string(e.Line(0)) != "compressed one\n" || string(e.Line(1)) != "compressed two\n" {
		t.Fatalf("lines = %q, %q", e.Line(0), e.Line(1))
	}
}
