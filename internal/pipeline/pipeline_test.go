// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package pipeline

import (
	"strings"
	"syscall"
	"testing"
)

func TestFilterRoundTripsStdin(t *testing.T) {
	p, err := Start(Config{
		Argv:   []string{"/bin/cat"},
		Stdin:  FDPipe,
		Stdout: FDPipe,
		Stderr: FDPipe,
		Input:  []byte("hello from the buffer\n"),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := p.Run()
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr=%q)", res.ExitCode, res.Stderr)
	}
	if got := string(res.Stdout); got != "hello from the buffer\n" {
		t.Fatalf("stdout = %q, want echoed input", got)
	}
}

func TestNullStdinStillCollectsStdout(t *testing.T) {
	p, err := Start(Config{
		Argv:   []string{"/bin/echo", "no stdin needed"},
		Stdin:  FDNull,
		Stdout: FDPipe,
		Stderr: FDPipe,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := p.Run()
	if !strings.Contains(string(res.Stdout), "no stdin needed") {
		t.Fatalf("stdout = %q, want it to contain the echoed argument", res.Stdout)
	}
}

func TestNonzeroExitIsReported(t *testing.T) {
	p, err := Start(Config{
		Argv:   []string{"/bin/sh", "-c", "exit 7"},
		Stdin:  FDNull,
		Stdout: FDPipe,
		Stderr: FDPipe,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := p.Run()
	if res.ExitCode != 7 {
		t.Fatalf("ExitCode = %d, want 7", res.ExitCode)
	}
}

// S6 from spec.md §8: a program that exits 2 and prints to stderr,
// with stderr the only pipe (stdin/stdout Null), as execrouter wires
// ActErrMsg.
func TestChildExitsNonzeroAndReportsStderr(t *testing.T) {
	p, err := Start(Config{
		Argv:   []string{"/bin/sh", "-c", "printf boom >&2; exit 2"},
		Stdin:  FDNull,
		Stdout: FDNull,
		Stderr: FDPipe,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := p.Run()
	if res.ExitCode != 2 {
		t.Fatalf("ExitCode = %d, want 2", res.ExitCode)
	}
	if string(res.Stderr) != "boom" {
		t.Fatalf("Stderr = %q, want %q", res.Stderr, "boom")
	}
	if res.Err != nil {
		t.Fatalf("Err = %v, want nil (nonzero exit alone is not an IoErr)", res.Err)
	}
}

func TestSignalKilledChildEncodesSignumShifted(t *testing.T) {
	p, err := Start(Config{
		Argv:   []string{"/bin/sh", "-c", "kill -KILL $$"},
		Stdin:  FDNull,
		Stdout: FDNull,
		Stderr: FDNull,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := p.Run()
	want := int(syscall.SIGKILL) << 8
	if res.ExitCode != want {
		t.Fatalf("ExitCode = %d, want %d ((signum << 8) for SIGKILL)", res.ExitCode, want)
	}
}

func TestChildExitingWithoutReadingStdinReportsErr(t *testing.T) {
	p, err := Start(Config{
		Argv:   []string{"/bin/true"},
		Stdin:  FDPipe,
		Stdout: FDPipe,
		Stderr: FDNull,
		// Large enough that /bin/true (which never reads stdin) has
		// long exited, closing its stdout, before this could ever be
		// fully written.
		Input: make([]byte, 4<<20),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := p.Run()
	if res.Err == nil {
		t.Fatalf("Err = nil, want a reported I/O error (child exited without consuming stdin)")
	}
}
