// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package execrouter wires one of the editor's exec actions (run a
// filter over the buffer, a line, a selection, or fire a detached
// command) to a pipeline.Config, and interprets what comes back:
// replace a region, parse compiler-style messages, or treat stdout as
// a list of files to open (spec.md §4.8).
package execrouter

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dte-go/dte/internal/idhash"
	"github.com/dte-go/dte/internal/pipeline"
)

// Action names the unit of buffer text an exec command is scoped to,
// and how its output is interpreted.
type Action int

const (
	// ActBuffer feeds the whole buffer as stdin and replaces it with
	// the child's stdout (a formatter/filter like gofmt).
	ActBuffer Action = iota
	// ActLine/ActWord are the same, scoped to the current line/word.
	ActLine
	ActWord
	// ActMsg runs with no stdin and parses stdout as compiler-style
	// messages, without touching the buffer.
	ActMsg
	// ActErrMsg is ActMsg but parses stderr instead of stdout.
	ActErrMsg
	// ActOpen runs with no stdin; each line of stdout is a filename
	// to open, filtered through OpenGlobs.
	ActOpen
	// ActTag looks up a single location (e.g. from ctags) and returns
	// it as one Message, without a buffer region.
	ActTag
	// ActEval captures stdout as plain text for variable substitution;
	// the buffer is never touched.
	ActEval
	// ActNull runs detached, discarding all three standard streams.
	ActNull
	// ActTty suspends the editor and connects the child directly to
	// the controlling terminal (a pager, an interactive shell).
	ActTty
)

// Message is one parsed diagnostic line, jumpable to File:Line:Col.
type Message struct {
	File string
	Line int
	Col  int
	Text string
}

// Request describes one invocation: the action, the argv to run, and
// the buffer bytes it is scoped to (nil for actions with no stdin).
type Request struct {
	Action Action
	Argv   []string
	Region []byte
}

// Outcome is what a Request produced, once its child exited.
type Outcome struct {
	// ReplaceWith is non-nil when Action scopes to a buffer region
	// that should be replaced with the child's stdout.
	ReplaceWith []byte
	Messages    []Message
	OpenPaths   []string
	EvalText    string
	ExitCode    int
	Err         error
}

// Router holds the state that spans multiple exec invocations: the
// message store (deduplicated by content hash) and the glob patterns
// an ActOpen result is filtered through.
type Router struct {
	OpenGlobs []string

	seen     map[uint64]struct{}
	messages []Message
}

// New returns a Router with no accumulated messages.
func New() *Router {
	return &Router{seen: make(map[uint64]struct{})}
}

// Run spawns req's child, drives it to completion, and interprets the
// result according to req.Action.
func (r *Router) Run(req Request) Outcome {
	cfg := pipeline.Config{Argv: req.Argv}

	switch req.Action {
	case ActNull:
		cfg.Stdin, cfg.Stdout, cfg.Stderr = pipeline.FDNull, pipeline.FDNull, pipeline.FDNull
		cfg.Quiet = true
	case ActTty:
		cfg.Stdin, cfg.Stdout, cfg.Stderr = pipeline.FDTty, pipeline.FDTty, pipeline.FDTty
	case ActBuffer, ActLine, ActWord:
		// The general two-way filter case: stdin and stdout are both
		// Pipe, so stderr may not also be Pipe (spec.md §4.7's
		// explicit constraint) — it is discarded instead.
		cfg.Stdin, cfg.Stdout, cfg.Stderr = pipeline.FDPipe, pipeline.FDPipe, pipeline.FDNull
		cfg.Input = req.Region
	case ActMsg, ActOpen, ActTag, ActEval:
		cfg.Stdin, cfg.Stdout, cfg.Stderr = pipeline.FDNull, pipeline.FDPipe, pipeline.FDNull
	case ActErrMsg:
		// stderr-only role: no stdin, stdout discarded, stderr is the
		// sole pipe (spec.md §4.8's ErrMsg row).
		cfg.Stdin, cfg.Stdout, cfg.Stderr = pipeline.FDNull, pipeline.FDNull, pipeline.FDPipe
	}

	p, err := pipeline.Start(cfg)
	if err != nil {
		return Outcome{Err: err, ExitCode: -1}
	}
	res := p.Run()
	out := Outcome{ExitCode: res.ExitCode, Err: res.Err}

	switch req.Action {
	case ActBuffer, ActLine, ActWord:
		out.ReplaceWith = res.Stdout
	case ActMsg:
		out.Messages = r.addMessages(parseMessages(res.Stdout))
	case ActErrMsg:
		out.Messages = r.addMessages(parseMessages(res.Stderr))
	case ActTag:
		msgs := parseMessages(res.Stdout)
		if len(msgs) > 0 {
			out.Messages = msgs[:1]
		}
	case ActOpen:
		out.OpenPaths = r.filterOpenPaths(res.Stdout)
	case ActEval:
		out.EvalText = string(bytes.TrimRight(res.Stdout, "\n"))
	}
	return out
}

// addMessages dedups incoming messages against the running store
// (keyed by a hash of File, Line and Text; Col is not part of the
// key) and returns only the ones not already present.
func (r *Router) addMessages(msgs []Message) []Message {
	fresh := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		key := idhash.Bytes([]byte(m.File + ":" + strconv.Itoa(m.Line) + ":" + m.Text))
		if _, ok := r.seen[key]; ok {
			continue
		}
		r.seen[key] = struct{}{}
		r.messages = append(r.messages, m)
		fresh = append(fresh, m)
	}
	return fresh
}

// Messages returns every message accumulated across all Run calls.
func (r *Router) Messages() []Message { return r.messages }

// ClearMessages empties the message store, e.g. before a fresh lint
// pass that should replace rather than append to the last one.
func (r *Router) ClearMessages() {
	r.seen = make(map[uint64]struct{})
	r.messages = nil
}

func (r *Router) filterOpenPaths(stdout []byte) []string {
	var paths []string
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if len(r.OpenGlobs) == 0 {
			paths = append(paths, line)
			continue
		}
		for _, g := range r.OpenGlobs {
			if ok, _ := doublestar.Match(g, line); ok {
				paths = append(paths, line)
				break
			}
		}
	}
	return paths
}

// maxMessageLineBytes mirrors handle_error_msg's per-line cap
// (spec.md §4.7): a line longer than this is truncated before
// matching rather than grown without bound.
const maxMessageLineBytes = 4096

type compiledFormat struct {
	pipeline.ErrorFormat
	re *regexp.Regexp
}

var compiledFormats = compileFormats(pipeline.DefaultErrorFormats)

func compileFormats(fs []pipeline.ErrorFormat) []compiledFormat {
	out := make([]compiledFormat, len(fs))
	for i, f := range fs {
		out[i] = compiledFormat{ErrorFormat: f, re: regexp.MustCompile(f.Pattern)}
	}
	return out
}

// parseMessages feeds each line of output through
// pipeline.DefaultErrorFormats, in order, the way handle_error_msg
// scans its format table: a tab-to-space pass first, then the first
// matching entry wins. A match against an Ignore format drops the
// line entirely (continuation output, carets, "Note:" asides);
// otherwise, per spec.md §4.7, "the raw line becomes a message" when
// nothing in the table matches.
func parseMessages(out []byte) []Message {
	var msgs []Message
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.ReplaceAll(sc.Text(), "\t", " ")
		if line == "" {
			continue
		}
		if len(line) > maxMessageLineBytes {
			line = line[:maxMessageLineBytes]
		}

		msg, matched, ignored := matchErrorFormats(line)
		if ignored {
			continue
		}
		if !matched {
			msg = Message{Text: line}
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func matchErrorFormats(line string) (msg Message, matched, ignored bool) {
	for _, f := range compiledFormats {
		m := f.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if f.Ignore {
			return Message{}, false, true
		}
		lineNo, _ := strconv.Atoi(submatch(f.re, m, "line"))
		col, _ := strconv.Atoi(submatch(f.re, m, "col"))
		return Message{
			File: submatch(f.re, m, "file"),
			Line: lineNo,
			Col:  col,
			Text: submatch(f.re, m, "message"),
		}, true, false
	}
	return Message{}, false, false
}

func submatch(re *regexp.Regexp, groups []string, name string) string {
	i := re.SubexpIndex(name)
	if i < 0 || i >= len(groups) {
		return ""
	}
	return groups[i]
}
