// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package highlighter

import (
	"testing"

	"github.com/dte-go/dte/internal/hlstate"
)

// S3 from spec.md §8: default -> string on '"', string -> default on
// '"'. Buffer `x"y"z`. Colors place default on x, string on "y", and
// default on z.
func quoteMachine() (*hlstate.Machine, hlstate.StateRef, hlstate.StateRef, hlstate.ColorRef, hlstate.ColorRef) {
	const (
		colDefault hlstate.ColorRef = 1
		colString  hlstate.ColorRef = 2
	)
	m := hlstate.NewMachine("quote")
	def := m.AddState("default", hlstate.Action{Color: colDefault, Dest: 0, Noeat: false})
	str := m.AddState("string", hlstate.Action{Color: colString, Dest: 0, Noeat: false})
	// default->string on '"'
	m.AddCondition(def, hlstate.Condition{
		Kind:   hlstate.CondChar,
		Bitmap: hlstate.Bitmap('"'),
		Action: hlstate.Action{Color: colString, Dest: str},
	})
	// default's own default action recolors to itself
	m.States[def].Default = hlstate.Action{Color: colDefault, Dest: def}
	// string->default on '"'
	m.AddCondition(str, hlstate.Condition{
		Kind:   hlstate.CondChar,
		Bitmap: hlstate.Bitmap('"'),
		Action: hlstate.Action{Color: colString, Dest: def},
	})
	m.States[str].Default = hlstate.Action{Color: colString, Dest: str}
	m.Start = def
	return m, def, str, colDefault, colString
}

func TestScenarioS3QuoteHighlighting(t *testing.T) {
	m, def, _, colDefault, colString := quoteMachine()
	colors, stateOut := LineHL(m, def, []byte(`x"y"z`))

	want := []hlstate.ColorRef{colDefault, colString, colString, colString, colDefault}
	if len(colors) != len(want) {
		t.Fatalf("colors len = %d, want %d", len(colors), len(want))
	}
	for i := range want {
		if colors[i] != want[i] {
			t.Fatalf("colors[%d] = %v, want %v (colors=%v)", i, colors[i], want[i], colors)
		}
	}
	if stateOut != def {
		t.Fatalf("stateOut = %v, want default", stateOut)
	}
}

func TestEmptyLineUnchangedState(t *testing.T) {
	m, def, _, _, _ := quoteMachine()
	colors, stateOut := LineHL(m, def, nil)
	if len(colors) != 0 {
		t.Fatalf("expected zero colors, got %d", len(colors))
	}
	if stateOut != def {
		t.Fatalf("expected unchanged state, got %v", stateOut)
	}
}

// A CharClass-driven identifier run only gets painted once a
// terminating InList condition fires over the whole run; a run that
// reaches end of line with no terminator stays unpainted.
func TestCharClassRunPaintedOnlyOnTerminator(t *testing.T) {
	const (
		colNone    hlstate.ColorRef = 0
		colKeyword hlstate.ColorRef = 3
	)
	m := hlstate.NewMachine("ident")
	alpha := hlstate.BitmapRange('a', 'z')
	def := m.AddState("default", hlstate.Action{Color: colNone, Dest: 0})
	m.AddCondition(def, hlstate.Condition{
		Kind:   hlstate.CondCharClass,
		Bitmap: alpha,
		Action: hlstate.Action{Dest: def},
	})
	m.AddCondition(def, hlstate.Condition{
		Kind:  hlstate.CondInList,
		List:  []string{"if", "for"},
		Action: hlstate.Action{Color: colKeyword, Dest: def},
	})
	m.States[def].Default = hlstate.Action{Color: colNone, Dest: def}
	m.Start = def

	// "if\n": the trailing newline is the non-alpha byte that ends
	// the identifier run and lets InList fire over "if".
	colors, _ := LineHL(m, def, []byte("if\n"))
	for i, c := range colors[:2] {
		if c != colKeyword {
			t.Fatalf("colors[%d] = %v, want keyword color (full match should paint)", i, c)
		}
	}

	colors, _ = LineHL(m, def, []byte("ifx"))
	for i, c := range colors {
		if c != colNone {
			t.Fatalf("colors[%d] = %v, want unpainted (run never terminated)", i, c)
		}
	}
}

func TestRecolorBackRepaintsTrailingBytes(t *testing.T) {
	const colFlag hlstate.ColorRef = 9
	m := hlstate.NewMachine("recolor")
	def := m.AddState("default", hlstate.Action{Dest: 0})
	afterBang := m.AddState("afterBang", hlstate.Action{Dest: 0})

	// Str("!") consumes the '!' and hands off to a state whose sole
	// purpose is to retroactively recolor it via RecolorBack, then
	// fall back to normal scanning.
	m.AddCondition(def, hlstate.Condition{
		Kind:   hlstate.CondStr,
		Str:    "!",
		Action: hlstate.Action{Dest: afterBang},
	})
	m.States[def].Default = hlstate.Action{Dest: def}

	m.AddCondition(afterBang, hlstate.Condition{
		Kind:   hlstate.CondRecolorBack,
		N:      1,
		Action: hlstate.Action{Color: colFlag, Dest: def},
	})
	m.States[afterBang].Default = hlstate.Action{Dest: def}
	m.Start = def

	colors, _ := LineHL(m, def, []byte("a!x"))
	if colors[1] != colFlag {
		t.Fatalf("expected RecolorBack to repaint the '!' byte, got %v", colors)
	}
}

func TestNoeatTransitionsWithoutAdvancing(t *testing.T) {
	const colA, colB hlstate.ColorRef = 1, 2
	m := hlstate.NewMachine("noeat")
	a := m.AddState("a", hlstate.Action{Color: colA, Dest: 0, Noeat: true})
	b := m.AddState("b", hlstate.Action{Color: colB, Dest: 0})
	m.States[a].Default = hlstate.Action{Dest: b, Noeat: true}
	m.States[b].Default = hlstate.Action{Color: colB, Dest: b}
	m.Start = a

	colors, stateOut := LineHL(m, a, []byte("x"))
	if colors[0] != colB {
		t.Fatalf("expected noeat fallthrough to state b before painting, got %v", colors[0])
	}
	if stateOut != b {
		t.Fatalf("stateOut = %v, want b", stateOut)
	}
}
